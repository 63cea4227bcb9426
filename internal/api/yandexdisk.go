package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/clearcut-studio/studio-server/internal/disk"
)

const bytesPerGB = 1 << 30

// DiskCheck reports whether a usable storage token is available, either
// from the request or from the server environment.
func DiskCheck(c *gin.Context) {
	a := appFrom(c)

	token := requestToken(c)
	if token == "" {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}

	if err := a.Disk.Check(c.Request.Context(), token); err != nil {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}

	fromEnv := c.Query("token") == "" && c.PostForm("token") == ""
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"from_env":      fromEnv,
	})
}

// DiskEnvToken exposes whether the server holds a default token. The token
// itself is only returned when explicitly configured for trusted desktop use.
func DiskEnvToken(c *gin.Context) {
	a := appFrom(c)

	token := a.Config().Disk.Token
	if token == "" {
		token = os.Getenv(EnvDiskToken)
	}

	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"available": token != "",
	})
}

func DiskFolders(c *gin.Context) {
	a := appFrom(c)

	root, err := a.Disk.List(c.Request.Context(), requestToken(c), "/", 200)
	if err != nil {
		diskError(c, err)
		return
	}

	folders := make([]gin.H, 0)
	if root.Embedded != nil {
		for _, item := range root.Embedded.Items {
			if item.IsDir() {
				folders = append(folders, gin.H{"name": item.Name, "path": item.Path})
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"folders": folders})
}

func DiskFiles(c *gin.Context) {
	a := appFrom(c)

	path := c.Query("path")
	if path == "" {
		badRequest(c, "path is required")
		return
	}

	listing, err := a.Disk.List(c.Request.Context(), requestToken(c), path, 1000)
	if err != nil {
		diskError(c, err)
		return
	}

	files := make([]gin.H, 0)
	if listing.Embedded != nil {
		for _, item := range listing.Embedded.Items {
			if item.IsDir() || !strings.HasPrefix(item.MimeType, "image/") {
				continue
			}
			files = append(files, gin.H{
				"name":      item.Name,
				"path":      item.Path,
				"mime_type": item.MimeType,
				"size":      item.Size,
			})
		}
	}

	c.JSON(http.StatusOK, gin.H{"files": files})
}

// DiskStructure returns one level of the folder tree. In lazy mode child
// folders carry a has_children marker instead of being descended into.
func DiskStructure(c *gin.Context) {
	a := appFrom(c)

	path := c.Query("path")
	if path == "" {
		path = "/"
	}

	listing, err := a.Disk.List(c.Request.Context(), requestToken(c), path, 1000)
	if err != nil {
		diskError(c, err)
		return
	}

	structure := make([]gin.H, 0)
	if listing.Embedded != nil {
		for _, item := range listing.Embedded.Items {
			entry := gin.H{
				"name": item.Name,
				"path": item.Path,
				"type": item.Type,
			}
			if item.IsDir() {
				entry["has_children"] = true
			} else {
				entry["mime_type"] = item.MimeType
				entry["size"] = item.Size
			}
			structure = append(structure, entry)
		}
	}

	c.JSON(http.StatusOK, gin.H{"structure": structure})
}

func DiskAccountInfo(c *gin.Context) {
	a := appFrom(c)

	quota, err := a.Disk.AccountInfo(c.Request.Context(), requestToken(c))
	if err != nil {
		diskError(c, err)
		return
	}

	total := float64(quota.TotalSpace) / bytesPerGB
	used := float64(quota.UsedSpace) / bytesPerGB
	c.JSON(http.StatusOK, gin.H{
		"total_space_gb": total,
		"used_space_gb":  used,
		"free_space_gb":  total - used,
	})
}

func DiskDownload(c *gin.Context) {
	a := appFrom(c)

	path := c.Query("path")
	if path == "" {
		badRequest(c, "path is required")
		return
	}

	body, err := a.Disk.Download(c.Request.Context(), requestToken(c), path)
	if err != nil {
		diskError(c, err)
		return
	}
	defer body.Close()

	c.Status(http.StatusOK)
	c.Header("Content-Type", "application/octet-stream")
	io.Copy(c.Writer, body)
}

// DiskDownloadPublic proxies a public share link so browser clients avoid
// cross-origin blocks.
func DiskDownloadPublic(c *gin.Context) {
	a := appFrom(c)

	fileURL := c.Query("url")
	if fileURL == "" {
		badRequest(c, "url is required")
		return
	}

	body, err := a.Disk.PublicDownload(c.Request.Context(), fileURL, c.Query("path"))
	if err != nil {
		diskError(c, err)
		return
	}
	defer body.Close()

	c.Status(http.StatusOK)
	c.Header("Content-Type", "application/octet-stream")
	io.Copy(c.Writer, body)
}

// DiskPublicFiles lists the image files of a published folder through the
// public resources API.
func DiskPublicFiles(c *gin.Context) {
	a := appFrom(c)

	publicURL := c.Query("public_url")
	if publicURL == "" {
		badRequest(c, "public_url is required")
		return
	}

	listing, err := a.Disk.PublicList(c.Request.Context(), publicURL, "", 1000)
	if err != nil {
		diskError(c, err)
		return
	}

	files := make([]gin.H, 0)
	if listing.Embedded != nil {
		for _, item := range listing.Embedded.Items {
			if item.IsDir() || !strings.HasPrefix(item.MimeType, "image/") {
				continue
			}
			files = append(files, gin.H{
				"name":      item.Name,
				"path":      item.Path,
				"url":       publicURL,
				"mime_type": item.MimeType,
				"size":      item.Size,
			})
		}
	}

	c.JSON(http.StatusOK, gin.H{"files": files})
}

func DiskUpload(c *gin.Context) {
	a := appFrom(c)

	file, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file is required")
		return
	}

	path := c.PostForm("path")
	if path == "" {
		badRequest(c, "path is required")
		return
	}

	content, err := readFormFile(file)
	if err != nil {
		badRequest(c, "failed to read file: %v", err)
		return
	}

	if err := a.Disk.Upload(c.Request.Context(), requestToken(c), path, bytes.NewReader(content)); err != nil {
		diskError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "path": path})
}

// DiskCreateFolder creates a folder, treating already-exists as success.
func DiskCreateFolder(c *gin.Context) {
	a := appFrom(c)

	path := c.Query("path")
	if path == "" {
		path = c.PostForm("path")
	}
	if path == "" {
		badRequest(c, "path is required")
		return
	}

	exists, err := a.Disk.CreateFolder(c.Request.Context(), requestToken(c), path)
	if err != nil {
		diskError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"path":    path,
		"exists":  exists,
	})
}

func diskError(c *gin.Context, err error) {
	var apiErr *disk.Error
	if errors.As(err, &apiErr) {
		status := apiErr.StatusCode
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		detail(c, status, "%s", apiErr.Error())
		return
	}

	detail(c, http.StatusBadGateway, "storage request failed: %v", err)
}
