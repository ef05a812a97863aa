// webapp 包是默认的 web 应用工厂
// 修复算法本身不在这里实现，它通过 Restorer 接口注入
package webapp

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"m-restorer/libcontainer/bridge"
)

// 写了一半的文件带有这个后缀，对外不可见
const partialSuffix = ".partial"

// 单次上传请求体的大小上限，超过时返回 413
var maxUploadSize int64 = 32 << 20

// Restorer 是图像修复能力的接口
type Restorer interface {
	// 读取 src，将修复后的图像写入 dst
	Restore(ctx context.Context, src, dst string) error
}

// Passthrough 不做任何修复，直接复制输入
type Passthrough struct{}

func (Passthrough) Restore(ctx context.Context, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

type app struct {
	uploads   string
	processed string
	restorer  Restorer
}

// Factory 返回一个 bootstrap 使用的应用工厂
func Factory(restorer Restorer) func(bridge.Paths) (http.Handler, error) {
	return func(paths bridge.Paths) (http.Handler, error) {
		return New(paths, restorer)
	}
}

// 构造 web 应用，存储位置完全来自 paths
func New(paths bridge.Paths, restorer Restorer) (http.Handler, error) {
	uploads, err := paths.Get(bridge.Uploads)
	if err != nil {
		return nil, err
	}
	processed, err := paths.Get(bridge.Processed)
	if err != nil {
		return nil, err
	}
	if restorer == nil {
		restorer = Passthrough{}
	}

	a := &app{uploads: uploads, processed: processed, restorer: restorer}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	api := router.Group("/api")
	api.POST("/upload", a.upload)
	api.POST("/restore/:name", a.restore)
	api.GET("/processed", a.listProcessed)
	router.GET("/processed/:name", a.download)

	return router, nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		}).Debug("request served")
	}
}

func (a *app) upload(c *gin.Context) {
	if c.Request.ContentLength > maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	header, err := c.FormFile("file")
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	name, ok := cleanName(header.Filename)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file name"})
		return
	}

	src, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer src.Close()

	if err := writeAtomic(filepath.Join(a.uploads, name), func(w io.Writer) error {
		_, err := io.Copy(w, src)
		return err
	}); err != nil {
		log.WithError(err).Error("failed to store upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store upload"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": name})
}

func (a *app) restore(c *gin.Context) {
	name, ok := cleanName(c.Param("name"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file name"})
		return
	}
	src := filepath.Join(a.uploads, name)
	if _, err := os.Stat(src); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "upload not found"})
		return
	}

	dst := filepath.Join(a.processed, name)
	tmp := dst + partialSuffix
	if err := a.restorer.Restore(c.Request.Context(), src, tmp); err != nil {
		_ = os.Remove(tmp)
		log.WithError(err).WithField("name", name).Error("restore failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "restore failed"})
		return
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to publish result"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "url": "/processed/" + name})
}

func (a *app) listProcessed(c *gin.Context) {
	entries, err := os.ReadDir(a.processed)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		// 超时被中断的写入会留下 partial 文件，不可信
		if e.Type().IsRegular() && !strings.HasSuffix(e.Name(), partialSuffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	c.JSON(http.StatusOK, gin.H{"files": names})
}

func (a *app) download(c *gin.Context) {
	name, ok := cleanName(c.Param("name"))
	if !ok || strings.HasSuffix(name, partialSuffix) {
		c.Status(http.StatusNotFound)
		return
	}
	c.File(filepath.Join(a.processed, name))
}

// 先写入 partial 文件再 rename，被中断的写入不会以最终文件名出现
func writeAtomic(path string, write func(io.Writer) error) error {
	tmp := path + partialSuffix
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "write %s", tmp)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// 只接受不含路径分隔符的文件名
func cleanName(name string) (string, bool) {
	base := filepath.Base(name)
	if base != name || base == "." || base == ".." || base == "/" || strings.HasPrefix(base, ".") {
		return "", false
	}
	return base, true
}
