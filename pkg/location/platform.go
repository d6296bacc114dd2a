package location

import "runtime"

// Platform describes the location capabilities of the running device.
type Platform struct {
	Name      string
	NativeGPS bool // Device exposes a native location service (phone/tablet)
}

// DetectPlatform reports the capabilities for the given GOOS value.
// Phones and tablets are native-GPS-capable, everything else is not.
func DetectPlatform(goos string) Platform {
	switch goos {
	case "android", "ios":
		return Platform{Name: goos, NativeGPS: true}
	default:
		return Platform{Name: goos}
	}
}

// CurrentPlatform reports the capabilities of the running binary.
func CurrentPlatform() Platform {
	return DetectPlatform(runtime.GOOS)
}
