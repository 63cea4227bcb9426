package filestorage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/clearcut-studio/studio-server/internal/config"
)

type LocalFileStorage struct {
	assetsDir string
	tempDir   string
	serverURL string
}

func NewLocalFileStorage(cfg *config.Config) (*LocalFileStorage, error) {
	return &LocalFileStorage{
		assetsDir: cfg.AssetsDir,
		tempDir:   cfg.TempDir,
		serverURL: strings.TrimSuffix(cfg.ServerURL, "/"),
	}, nil
}

func (u *LocalFileStorage) Upload(file FileInfo) (string, error) {
	var filedest string
	if file.IsTemp {
		filedest = filepath.Join(u.tempDir, file.Name+file.Extension)
	} else {
		filedest = filepath.Join(u.assetsDir, file.Name+file.Extension)
	}

	if err := os.MkdirAll(filepath.Dir(filedest), os.ModePerm); err != nil {
		return "", err
	}

	if err := os.WriteFile(filedest, file.Content, os.FileMode(0644)); err != nil {
		return "", err
	}

	return fmt.Sprintf("%s/file/%s%s", u.serverURL, file.Name, file.Extension), nil
}

func (u *LocalFileStorage) UploadMultiple(files []FileInfo) ([]string, error) {
	var uploadedFiles []string
	for _, file := range files {
		destination, err := u.Upload(file)
		if err != nil {
			return nil, err
		}

		uploadedFiles = append(uploadedFiles, destination)
	}

	return uploadedFiles, nil
}

func (u *LocalFileStorage) GetFile(filename string) (*FileInfo, error) {
	content, err := os.ReadFile(filepath.Join(u.assetsDir, filename))
	if err != nil {
		return nil, err
	}

	return &FileInfo{
		Name:      filename,
		Extension: filepath.Ext(filename),
		Content:   content,
		IsTemp:    false,
	}, nil
}

func (u *LocalFileStorage) ResolveFile(filename string, subfolder string, isTemp bool) (string, error) {
	var resolved string
	if isTemp {
		resolved = filepath.Join(u.tempDir, subfolder, filename)
	} else {
		resolved = filepath.Join(u.assetsDir, subfolder, filename)
	}

	if _, err := os.Stat(resolved); err != nil {
		return "", err
	}

	return resolved, nil
}
