package efs

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/helper/chroot"
	"github.com/go-git/go-billy/v5/util"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	kerrors "github.com/PolarWolf314/strongbox/internal/errors"
)

// KeySize is the required vault key length.
const KeySize = 32

// Overhead is how many bytes sealing adds to every file.
const Overhead = chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

const hkdfInfo = "strongbox efs v1"

// FS encrypts the files of an underlying filesystem.
type FS struct {
	under billy.Filesystem
	aead  cipher.AEAD
}

// New returns an encrypting view of under keyed by key.
func New(under billy.Filesystem, key []byte) (*FS, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", kerrors.ErrInvalidKeyLength, len(key), KeySize)
	}
	derived := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, nil, []byte(hkdfInfo)), derived); err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(derived)
	if err != nil {
		return nil, err
	}
	return &FS{under: under, aead: aead}, nil
}

// Underlying returns the filesystem holding the ciphertext.
func (fs *FS) Underlying() billy.Filesystem {
	return fs.under
}

func (fs *FS) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, chacha20poly1305.NonceSizeX, Overhead+len(plaintext))
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return fs.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (fs *FS) open(name string, sealed []byte) ([]byte, error) {
	if len(sealed) == 0 {
		return nil, nil
	}
	if len(sealed) < Overhead {
		return nil, fmt.Errorf("%w: %s is truncated", kerrors.ErrDecryptFailed, name)
	}
	nonce, ciphertext := sealed[:chacha20poly1305.NonceSizeX], sealed[chacha20poly1305.NonceSizeX:]
	plaintext, err := fs.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", kerrors.ErrDecryptFailed, name)
	}
	return plaintext, nil
}

func (fs *FS) readAll(name string) ([]byte, error) {
	sealed, err := util.ReadFile(fs.under, name)
	if err != nil {
		return nil, err
	}
	return fs.open(name, sealed)
}

func (fs *FS) store(name string, perm os.FileMode, plaintext []byte) error {
	sealed, err := fs.seal(plaintext)
	if err != nil {
		return err
	}
	return util.WriteFile(fs.under, name, sealed, perm)
}

func (fs *FS) Create(filename string) (billy.File, error) {
	return fs.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o666)
}

func (fs *FS) Open(filename string) (billy.File, error) {
	return fs.OpenFile(filename, os.O_RDONLY, 0)
}

func (fs *FS) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	info, statErr := fs.under.Stat(filename)
	exists := statErr == nil
	if statErr != nil && !errors.Is(statErr, os.ErrNotExist) {
		return nil, statErr
	}
	if exists && info.IsDir() {
		return nil, fmt.Errorf("open %s: is a directory", filename)
	}
	if exists && flag&os.O_CREATE != 0 && flag&os.O_EXCL != 0 {
		return nil, &os.PathError{Op: "open", Path: filename, Err: os.ErrExist}
	}
	if !exists && flag&os.O_CREATE == 0 {
		return nil, &os.PathError{Op: "open", Path: filename, Err: os.ErrNotExist}
	}

	var data []byte
	if exists && flag&os.O_TRUNC == 0 {
		var err error
		if data, err = fs.readAll(filename); err != nil {
			return nil, err
		}
	}

	writable := flag&(os.O_WRONLY|os.O_RDWR) != 0
	f := &file{name: filename, data: data, writable: writable}
	if flag&os.O_APPEND != 0 {
		f.pos = int64(len(data))
		f.appendOnly = true
	}
	if writable {
		if perm == 0 {
			perm = 0o600
		}
		f.flush = func(b []byte) error { return fs.store(filename, perm, b) }
		// Created files exist from the moment they are opened.
		if !exists || flag&os.O_TRUNC != 0 {
			if err := fs.store(filename, perm, nil); err != nil {
				return nil, err
			}
		}
	}
	return f, nil
}

func (fs *FS) Stat(filename string) (os.FileInfo, error) {
	info, err := fs.under.Stat(filename)
	if err != nil {
		return nil, err
	}
	return plainInfo{info}, nil
}

func (fs *FS) Lstat(filename string) (os.FileInfo, error) {
	info, err := fs.under.Lstat(filename)
	if err != nil {
		return nil, err
	}
	return plainInfo{info}, nil
}

func (fs *FS) Rename(oldpath, newpath string) error {
	return fs.under.Rename(oldpath, newpath)
}

func (fs *FS) Remove(filename string) error {
	return fs.under.Remove(filename)
}

func (fs *FS) Join(elem ...string) string {
	return fs.under.Join(elem...)
}

// TempFile reserves a unique name in dir and returns an encrypting file
// for it.
func (fs *FS) TempFile(dir, prefix string) (billy.File, error) {
	tmp, err := fs.under.TempFile(dir, prefix)
	if err != nil {
		return nil, err
	}
	name := tmp.Name()
	if err := tmp.Close(); err != nil {
		return nil, err
	}
	return fs.OpenFile(name, os.O_RDWR|os.O_TRUNC, 0o600)
}

func (fs *FS) ReadDir(path string) ([]os.FileInfo, error) {
	infos, err := fs.under.ReadDir(path)
	if err != nil {
		return nil, err
	}
	out := make([]os.FileInfo, len(infos))
	for i, info := range infos {
		out[i] = plainInfo{info}
	}
	return out, nil
}

func (fs *FS) MkdirAll(filename string, perm os.FileMode) error {
	return fs.under.MkdirAll(filename, perm)
}

func (fs *FS) Symlink(target, link string) error {
	return fs.under.Symlink(target, link)
}

func (fs *FS) Readlink(link string) (string, error) {
	return fs.under.Readlink(link)
}

func (fs *FS) Chroot(path string) (billy.Filesystem, error) {
	return chroot.New(fs, path), nil
}

func (fs *FS) Root() string {
	return fs.under.Root()
}

func (fs *FS) Capabilities() billy.Capability {
	return billy.ReadCapability | billy.WriteCapability | billy.ReadAndWriteCapability |
		billy.SeekCapability | billy.TruncateCapability
}

// plainInfo reports the plaintext size of sealed files.
type plainInfo struct {
	os.FileInfo
}

func (i plainInfo) Size() int64 {
	size := i.FileInfo.Size()
	if !i.Mode().IsRegular() {
		return size
	}
	if size < Overhead {
		return 0
	}
	return size - Overhead
}
