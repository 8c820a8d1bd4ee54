package sequence

import "fmt"

// DirectoryCreationError reports that the output's parent directory was
// missing and could not be created.
type DirectoryCreationError struct {
	Dir string
	Err error
}

func (e *DirectoryCreationError) Error() string {
	return fmt.Sprintf("failed to create directory %s: %v", e.Dir, e.Err)
}

func (e *DirectoryCreationError) Unwrap() error { return e.Err }

// FileOpenError reports that the output file could not be opened for writing.
type FileOpenError struct {
	Path string
	Err  error
}

func (e *FileOpenError) Error() string {
	return fmt.Sprintf("the file %s could not be opened for writing: %v", e.Path, e.Err)
}

func (e *FileOpenError) Unwrap() error { return e.Err }

// WriteError reports a failed write or close after the file was opened.
// The partial file is left in place.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
