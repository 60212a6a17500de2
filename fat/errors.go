package fat

import "errors"

// Errors returned by Volume operations, usually wrapped in an
// *fs.PathError naming the operation and the path.
var (
	ErrVolumeFull        = errors.New("no free clusters left")
	ErrInvalidGeometry   = errors.New("invalid volume geometry")
	ErrNameTooLong       = errors.New("name too long")
	ErrNameEmpty         = errors.New("name is empty")
	ErrInvalidName       = errors.New("invalid name")
	ErrAlreadyExists     = errors.New("entry already exists")
	ErrNotFound          = errors.New("no such file or directory")
	ErrIsADirectory      = errors.New("is a directory")
	ErrNotADirectory     = errors.New("not a directory")
	ErrDirectoryNotEmpty = errors.New("directory not empty")
	ErrDirectoryFull     = errors.New("directory has no free entries")
	ErrAlreadyDeleted    = errors.New("entry already deleted")
	ErrNotDeleted        = errors.New("entry not deleted")
	ErrFileTooLarge      = errors.New("file larger than one cluster")
	ErrInvalidRange      = errors.New("invalid byte range")
	ErrCorruption        = errors.New("file system corrupted")
)
