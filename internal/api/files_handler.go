package api

import (
	"net/http"
	"strconv"

	"VizioImport/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// FilesHandler 文件台账与运行记录查询
type FilesHandler struct {
	fileRepo repository.FileInfoRepository
	runRepo  repository.ImportRunRepository
	logger   *logrus.Logger
}

// NewFilesHandler 创建 FilesHandler 实例
func NewFilesHandler(db *gorm.DB, logger *logrus.Logger) *FilesHandler {
	return &FilesHandler{
		fileRepo: repository.NewFileInfoRepository(db),
		runRepo:  repository.NewImportRunRepository(db),
		logger:   logger,
	}
}

// ListFiles 列出文件台账
// @Summary 查询文件台账
// @Param pending query string false "true时只返回未导入的文件"
// @Router /api/files [get]
func (h *FilesHandler) ListFiles(c *gin.Context) {
	pendingOnly := c.Query("pending") == "true"
	files, err := h.fileRepo.List(c.Request.Context(), pendingOnly)
	if err != nil {
		h.logger.Errorf("查询文件台账失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": len(files), "files": files})
}

// ListRuns 列出最近的导入运行记录
// @Summary 查询导入运行记录
// @Param limit query int false "返回条数（默认50）"
// @Router /api/runs [get]
func (h *FilesHandler) ListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := h.runRepo.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.Errorf("查询运行记录失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": len(runs), "runs": runs})
}
