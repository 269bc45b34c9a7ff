package backup

import "errors"

var (
	// ErrMetadataMissing means the metadata index file has gone missing.
	ErrMetadataMissing = errors.New("backup metadata file missing")

	// ErrMetadataInvalid means the metadata index file seems invalid.
	ErrMetadataInvalid = errors.New("backup metadata file invalid")

	// ErrBackupMissing means the named backup could not be found.
	ErrBackupMissing = errors.New("backup not found")

	// ErrNameTaken means a backup with that name already exists.
	ErrNameTaken = errors.New("backup name already exists")

	// ErrInvalidName means the backup name is empty after sanitization.
	ErrInvalidName = errors.New("invalid backup name")
)
