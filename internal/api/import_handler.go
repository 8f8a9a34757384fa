package api

import (
	"net/http"
	"time"

	"VizioImport/internal/config"
	"VizioImport/internal/download"
	"VizioImport/internal/refdata"
	"VizioImport/internal/repository"
	"VizioImport/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ImportHandler 触发一个数据日期的导入运行
type ImportHandler struct {
	db     *gorm.DB
	logger *logrus.Logger
	cfg    *config.Config
	refs   *refdata.References
}

// NewImportHandler 创建 ImportHandler 实例
func NewImportHandler(db *gorm.DB, logger *logrus.Logger, cfg *config.Config, refs *refdata.References) *ImportHandler {
	return &ImportHandler{db: db, logger: logger, cfg: cfg, refs: refs}
}

// RunImport 导入指定数据日期的全部文件
// @Summary 运行Vizio收视数据导入
// @Param date path string true "数据日期（YYYY-MM-DD）"
// @Param download query string false "true时先从S3拉取该日期文件"
// @Param path query string false "本地文件目录（默认按下载目录推导）"
// @Success 200 {object} service.RunSummary
// @Failure 400 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /import/run/{date} [post]
func (h *ImportHandler) RunImport(c *gin.Context) {
	dateStr := c.Param("date")
	dataDate, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date 必须是 YYYY-MM-DD"})
		return
	}
	ctx := c.Request.Context()
	fileRepo := repository.NewFileInfoRepository(h.db)

	dir := c.Query("path")
	if c.Query("download") == "true" {
		downloader, err := download.NewDownloader(&h.cfg.S3, fileRepo, h.logger)
		if err != nil {
			h.logger.Errorf("创建下载器失败: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if dir, err = downloader.Download(ctx, dateStr); err != nil {
			h.logger.Errorf("下载%s文件失败: %v", dateStr, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	if dir == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "需要 path 参数或 download=true"})
		return
	}

	importer, err := service.NewImporter(
		ctx, h.db, h.logger, h.cfg,
		repository.NewGormBulkLoader(h.db, h.cfg.Import.BatchSize),
		h.refs,
		dataDate.Year(), int(dataDate.Month()), dataDate.Day(),
	)
	if err != nil {
		h.logger.Errorf("初始化导入器失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	summary, err := importer.ImportDir(ctx, dir)
	if err != nil {
		h.logger.Errorf("导入%s失败: %v", dateStr, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "summary": summary})
		return
	}
	c.JSON(http.StatusOK, summary)
}
