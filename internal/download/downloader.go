package download

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"VizioImport/internal/config"
	"VizioImport/internal/repository"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/sirupsen/logrus"
)

// 对象键里的数据日期，如 vizio/content.2017-05-17-07.gz
var datePattern = regexp.MustCompile(`[0-9]{4}-[0-9]{2}-[0-9]{2}`)

// Downloader 从供应商S3桶按数据日期拉取文件到本地，解压并登记 downloaded_date
type Downloader struct {
	s3Client   *s3.S3
	downloader *s3manager.Downloader
	bucket     string
	root       string
	fileRepo   repository.FileInfoRepository
	logger     *logrus.Logger
}

// NewDownloader 创建 Downloader 实例
func NewDownloader(cfg *config.S3Config, fileRepo repository.FileInfoRepository, logger *logrus.Logger) (*Downloader, error) {
	awsCfg := aws.NewConfig().WithRegion(cfg.Region)
	if cfg.AccessKey != "" {
		awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""))
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("创建S3会话失败: %w", err)
	}
	return &Downloader{
		s3Client:   s3.New(sess),
		downloader: s3manager.NewDownloader(sess),
		bucket:     cfg.Bucket,
		root:       cfg.DownloadDir,
		fileRepo:   fileRepo,
		logger:     logger,
	}, nil
}

// listKeysByDate 遍历整个桶，把对象键按键名里的 YYYY-MM-DD 归组后取指定日期
func (d *Downloader) listKeysByDate(ctx context.Context, dateStr string) ([]string, error) {
	var keys []string
	input := &s3.ListObjectsV2Input{Bucket: aws.String(d.bucket)}
	err := d.s3Client.ListObjectsV2PagesWithContext(ctx, input,
		func(page *s3.ListObjectsV2Output, _ bool) bool {
			for _, obj := range page.Contents {
				name := aws.StringValue(obj.Key)
				if datePattern.FindString(name) == dateStr {
					keys = append(keys, name)
				}
			}
			return true
		})
	if err != nil {
		return nil, fmt.Errorf("列举桶对象失败: %w", err)
	}
	return keys, nil
}

// Download 下载某个数据日期的全部文件到 {root}/{YYYY-MM}/{YYYY-MM-DD}/，
// 返回本地目录。gz 文件就地解压，每个文件登记 downloaded_date。
// 目前总是整日期重新下载，已存在的同名文件被覆盖。
func (d *Downloader) Download(ctx context.Context, dateStr string) (string, error) {
	dataDate, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return "", fmt.Errorf("数据日期%q非法: %w", dateStr, err)
	}

	keys, err := d.listKeysByDate(ctx, dateStr)
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "", fmt.Errorf("桶里没有%s的文件", dateStr)
	}

	destDir := filepath.Join(d.root, dateStr[:7], dateStr)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("创建下载目录失败: %w", err)
	}

	for _, key := range keys {
		fileName := filepath.Base(key)
		destPath := filepath.Join(destDir, fileName)
		d.logger.Infof("下载 %s 到 %s", key, destDir)

		if err := d.downloadObject(ctx, key, destPath); err != nil {
			return "", err
		}
		if strings.HasSuffix(destPath, ".gz") {
			if destPath, err = gunzip(destPath); err != nil {
				return "", fmt.Errorf("解压%s失败: %w", fileName, err)
			}
		}
		if err := d.fileRepo.MarkDownloaded(ctx, filepath.Base(destPath), dataDate, time.Now()); err != nil {
			return "", err
		}
	}
	return destDir, nil
}

func (d *Downloader) downloadObject(ctx context.Context, key, destPath string) error {
	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("创建本地文件失败: %w", err)
	}
	defer f.Close()

	_, err = d.downloader.DownloadWithContext(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("下载%s失败: %w", key, err)
	}
	return nil
}

// gunzip 解压到去掉 .gz 后缀的文件并删除原文件，返回解压后路径
func gunzip(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	gzReader, err := gzip.NewReader(src)
	if err != nil {
		return "", err
	}
	defer gzReader.Close()

	outPath := strings.TrimSuffix(path, ".gz")
	dst, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, gzReader); err != nil {
		dst.Close()
		return "", err
	}
	if err := dst.Close(); err != nil {
		return "", err
	}
	return outPath, os.Remove(path)
}
