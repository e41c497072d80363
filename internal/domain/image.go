package domain

import "sync"

// Image is a fetched, displayable recipe image. It may own a resource
// (a downloaded temp file) that must be released when the entry leaves
// the prefetch queue.
type Image struct {
	Key      string
	Filename string
	// File is a local path or a remote URL, depending on the store.
	File string

	once    sync.Once
	release func() error
}

// NewImage builds an entry. release may be nil.
func NewImage(key, filename, file string, release func() error) *Image {
	return &Image{Key: key, Filename: filename, File: file, release: release}
}

// Release frees the underlying resource. Only the first call has an effect.
func (i *Image) Release() error {
	if i == nil {
		return nil
	}
	var err error
	i.once.Do(func() {
		if i.release != nil {
			err = i.release()
		}
	})
	return err
}
