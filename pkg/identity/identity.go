package identity

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/freevia/locator/pkg/file"
	"github.com/google/uuid"
)

// Identity holds the installation's unique identifier.
type Identity struct {
	ID        string    `json:"installation_id"`
	CreatedAt time.Time `json:"created_at"`
}

// InstallationInfoInterface defines methods for managing the installation identity.
type InstallationInfoInterface interface {
	LoadOrCreate() error
	GetInstallationID() string
}

// InstallationInfo manages the installation identity and its backing file.
type InstallationInfo struct {
	InstallationFile string
	Identity         Identity
	fileOps          file.FileOperations
}

// NewInstallationInfo initializes a new InstallationInfo instance.
func NewInstallationInfo(filePath string, fileOps file.FileOperations) *InstallationInfo {
	return &InstallationInfo{
		InstallationFile: filePath,
		fileOps:          fileOps,
	}
}

// LoadOrCreate reads the identity file. A missing file, or one without an ID,
// gets a fresh ID that is written back.
func (i *InstallationInfo) LoadOrCreate() error {
	err := i.fileOps.ReadJsonFile(i.InstallationFile, &i.Identity)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read installation file: %w", err)
	}
	if i.Identity.ID != "" {
		return nil
	}

	i.Identity = Identity{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
	if err := i.fileOps.WriteJsonFile(i.InstallationFile, i.Identity); err != nil {
		return fmt.Errorf("failed to write installation file: %w", err)
	}
	return nil
}

// GetInstallationID returns the current installation ID.
func (i *InstallationInfo) GetInstallationID() string {
	return i.Identity.ID
}
