package store

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5/util"

	"github.com/PolarWolf314/strongbox/internal/git/object"
	"github.com/PolarWolf314/strongbox/internal/git/packfile"
)

// listPacks loads the index of every pack on disk. It runs once per Store;
// packs written through WritePack are appended as they land.
func (s *Store) listPacks() error {
	if s.packsListed {
		return nil
	}
	infos, err := s.fs.ReadDir(packDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("listing packs: %w", err)
	}
	for _, info := range infos {
		name := info.Name()
		if info.IsDir() || !strings.HasPrefix(name, "pack-") || !strings.HasSuffix(name, ".pack") {
			continue
		}
		p, err := s.openPack(path.Join(packDir, name))
		if err != nil {
			return err
		}
		s.packs = append(s.packs, p)
	}
	s.packsListed = true
	s.log.Debugf("Found %d packs", len(s.packs))
	return nil
}

func (s *Store) openPack(packPath string) (*pack, error) {
	idxPath := strings.TrimSuffix(packPath, ".pack") + ".idx"
	f, err := s.fs.Open(idxPath)
	if err == nil {
		defer f.Close()
		idx, err := packfile.ReadIndex(f)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", idxPath, err)
		}
		return &pack{name: packPath, index: idx}, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	// No index on disk: rebuild it from the pack itself and keep the bytes.
	data, err := util.ReadFile(s.fs, packPath)
	if err != nil {
		return nil, err
	}
	idx, err := indexPack(bytes.NewReader(data), nil)
	if err != nil {
		return nil, fmt.Errorf("indexing %s: %w", packPath, err)
	}
	s.log.Warnf("Pack %s has no index, rebuilt it in memory", packPath)
	return &pack{name: packPath, index: idx, data: data}, nil
}

func indexPack(r io.Reader, sink io.Writer) (*packfile.Index, error) {
	var entries []packfile.IndexEntry
	checksum, err := packfile.NewDecoder(r, sink).Decode(func(e packfile.Entry) error {
		entries = append(entries, packfile.IndexEntry{Oid: e.Oid, Offset: e.Offset, CRC32: e.CRC32})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return packfile.NewIndex(entries, checksum), nil
}

func (s *Store) inPack(oid object.Oid) (*pack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.listPacks(); err != nil {
		return nil, err
	}
	for _, p := range s.packs {
		if p.index.Contains(oid) {
			return p, nil
		}
	}
	return nil, nil
}

func (s *Store) readPacked(oid object.Oid) (object.Type, []byte, bool, error) {
	p, err := s.inPack(oid)
	if err != nil || p == nil {
		return "", nil, false, err
	}

	s.mu.Lock()
	if p.data == nil {
		data, err := util.ReadFile(s.fs, p.name)
		if err != nil {
			s.mu.Unlock()
			return "", nil, false, fmt.Errorf("loading %s: %w", p.name, err)
		}
		p.data = data
		s.log.Debugf("Loaded pack %s (%d bytes)", p.name, len(data))
	}
	data := p.data
	s.mu.Unlock()

	offset, _ := p.index.Offset(oid)
	typ, content, err := packfile.ReadObjectAt(data, offset)
	if err != nil {
		return "", nil, false, fmt.Errorf("reading %s from %s: %w", oid, p.name, err)
	}
	return typ, content, true, nil
}

// WritePack stores the pack read from r together with its index and
// returns the index. r is consumed up to the end of the pack trailer.
func (s *Store) WritePack(r io.Reader) (*packfile.Index, error) {
	if err := s.fs.MkdirAll(packDir, 0o755); err != nil {
		return nil, err
	}
	tmp, err := s.fs.TempFile(packDir, "tmp_pack_")
	if err != nil {
		return nil, err
	}
	tmpName := tmp.Name()

	idx, err := indexPack(r, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.fs.Remove(tmpName)
		return nil, err
	}

	base := path.Join(packDir, "pack-"+hex.EncodeToString(idx.PackChecksum))
	if err := s.fs.Rename(tmpName, base+".pack"); err != nil {
		s.fs.Remove(tmpName)
		return nil, err
	}
	idxFile, err := s.fs.Create(base + ".idx")
	if err != nil {
		return nil, err
	}
	if _, err := idx.WriteTo(idxFile); err != nil {
		idxFile.Close()
		return nil, err
	}
	if err := idxFile.Close(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if err := s.listPacks(); err == nil {
		known := false
		for _, p := range s.packs {
			if p.name == base+".pack" {
				known = true
			}
		}
		if !known {
			s.packs = append(s.packs, &pack{name: base + ".pack", index: idx})
		}
	}
	s.mu.Unlock()

	s.log.Infof("Stored pack with %d objects", idx.Len())
	return idx, nil
}
