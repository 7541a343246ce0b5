package main

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/yourusername/researchmate/internal/account"
	"github.com/yourusername/researchmate/internal/config"
	"github.com/yourusername/researchmate/internal/jobs"
	"github.com/yourusername/researchmate/internal/mail"
	"github.com/yourusername/researchmate/internal/otp"
)

// delivery は OTP の保存先と通知経路をまとめたものです。
type delivery struct {
	store    otp.Store
	notifier account.OTPNotifier
	manager  *jobs.Manager
	redis    *redis.Client
}

func (d *delivery) shutdown(ctx context.Context) error {
	if d.manager != nil {
		if err := d.manager.Shutdown(ctx); err != nil {
			return err
		}
	}
	if d.redis != nil {
		return d.redis.Close()
	}
	return nil
}

func newSender(cfg *config.Config, logger *zap.Logger) mail.Sender {
	if cfg.SMTPHost == "" {
		logger.Warn("SMTP_HOST is not set; mails are written to the log")
		return &mail.LogSender{Logger: logger}
	}
	return &mail.SMTPSender{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	}
}

// setupDelivery は REDIS_URL があれば Redis と Asynq を、なければインメモリと同期送信を使います。
func setupDelivery(ctx context.Context, cfg *config.Config, sender mail.Sender, logger *zap.Logger) (*delivery, error) {
	if cfg.RedisURL == "" {
		logger.Info("REDIS_URL is not set; using in-memory otp store and synchronous mail")
		return &delivery{
			store:    otp.NewMemoryStore(),
			notifier: &mail.DirectNotifier{Sender: sender, TTL: cfg.OTPTTL()},
		}, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	redisClient := redis.NewClient(opt)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, err
	}

	store := jobs.NewStore(redisClient, cfg.JobTTL())
	manager, err := jobs.NewManager(cfg, sender, store, logger)
	if err != nil {
		_ = redisClient.Close()
		return nil, err
	}
	manager.StartWorkers()

	return &delivery{
		store:    otp.NewRedisStore(redisClient),
		notifier: manager,
		manager:  manager,
		redis:    redisClient,
	}, nil
}

func mailJobStatusHandler(manager *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("id")
		if strings.TrimSpace(jobID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "Specify a job id.",
			})
			return
		}

		record, err := manager.GetRecord(c.Request.Context(), jobID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to load the job.",
			})
			return
		}
		if record == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "JOB_NOT_FOUND",
				"message": "The job does not exist.",
			})
			return
		}
		c.JSON(http.StatusOK, record)
	}
}
