package fs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// MkdirP создает путь рекурсивно с правами 0755 (как `mkdir -p`).
// Не генерирует ошибку, если директория уже существует.
func MkdirP(path string) error {
	if path == "" {
		return fmt.Errorf("path is empty")
	}
	return os.MkdirAll(path, 0o755)
}

// LinkTree копирует дерево src в dst жесткими ссылками (как `cp -al`).
// Директории создаются заново с исходными правами, symlink'и копируются как есть.
// dst не должен существовать.
func LinkTree(src, dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("link tree: %s already exists", dst)
	}
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return os.Mkdir(target, info.Mode().Perm()|0o700)
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case info.Mode().IsRegular():
			return os.Link(path, target)
		}
		// sockets, fifos and devices are skipped
		return nil
	})
}

// ReplaceTree удаляет dst и заменяет его hardlink-копией src.
// Если src не существует, dst остается пустой директорией.
func ReplaceTree(src, dst string) error {
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("remove %s: %w", dst, err)
	}
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return MkdirP(dst)
	}
	if err := MkdirP(filepath.Dir(dst)); err != nil {
		return err
	}
	return LinkTree(src, dst)
}

// DirSize sums regular file sizes below dir.
func DirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	return total, err
}
