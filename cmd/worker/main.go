package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/secondme-labs/match-backend/internal/act"
	"github.com/secondme-labs/match-backend/internal/config"
	"github.com/secondme-labs/match-backend/internal/db"
	"github.com/secondme-labs/match-backend/internal/logger"
	"github.com/secondme-labs/match-backend/internal/models"
	"github.com/secondme-labs/match-backend/internal/secondme"
	"github.com/secondme-labs/match-backend/internal/store/rabbitmq"
	"gorm.io/gorm"
)

func workerConcurrency(cfg config.Config) int {
	n := cfg.WorkerConcurrency
	if n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.AppEnv)

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}

	repo := act.NewRepo(gdb)
	sm := secondme.NewClient(cfg, log)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatal().Err(err).Msg("rabbit dial failed")
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal().Err(err).Msg("rabbit channel failed")
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		log.Fatal().Err(err).Msg("queue declare failed")
	}

	concurrency := workerConcurrency(cfg)
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatal().Err(err).Msg("qos failed")
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("consume failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("queue", cfg.RabbitQueue).Int("concurrency", concurrency).Msg("worker started")

	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var m rabbitmq.JobMessage
				if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
					log.Warn().Int("worker", workerID).Err(err).Msg("bad message")
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := handleJob(ctx, gdb, repo, sm, m.JobID); err != nil {
					log.Warn().
						Int("worker", workerID).
						Str("job_id", m.JobID).
						Dur("cost", time.Since(start)).
						Err(err).
						Msg("job failed")
					_ = d.Nack(false, false)
					continue
				}

				if err := d.Ack(false); err != nil {
					log.Warn().Int("worker", workerID).Str("job_id", m.JobID).Err(err).Msg("ack failed")
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Warn().Msg("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}

func handleJob(ctx context.Context, gdb *gorm.DB, repo *act.Repo, sm *secondme.Client, jobID string) error {
	_ = repo.MarkRunning(ctx, jobID)

	j, err := repo.GetByID(ctx, jobID)
	if err != nil {
		return err
	}

	accessToken, err := freshAccessToken(ctx, gdb, sm, j.UserID)
	if err != nil {
		_ = repo.MarkFailed(ctx, jobID, err.Error())
		return err
	}

	result, err := runJudgment(ctx, sm, accessToken, j)
	if err != nil {
		_ = repo.MarkFailed(ctx, jobID, err.Error())
		return err
	}

	return repo.MarkSucceeded(ctx, jobID, result)
}

func runJudgment(ctx context.Context, sm *secondme.Client, accessToken string, j *act.Job) (string, error) {
	var result any
	switch j.Type {
	case act.TypeCompatibility:
		var p act.CompatibilityParams
		if err := json.Unmarshal([]byte(j.Payload), &p); err != nil {
			return "", fmt.Errorf("decode job payload: %w", err)
		}
		score, err := sm.GetCompatibilityScore(ctx, accessToken, p.User1Shades, p.User2Shades, p.User1Bio, p.User2Bio)
		if err != nil {
			return "", err
		}
		result = score

	case act.TypeCustom:
		var p act.CustomParams
		if err := json.Unmarshal([]byte(j.Payload), &p); err != nil {
			return "", fmt.Errorf("decode job payload: %w", err)
		}
		out, err := sm.Act(ctx, accessToken, p.Prompt, p.ActionControl)
		if err != nil {
			return "", err
		}
		result = out

	default:
		return "", fmt.Errorf("unknown job type %q", j.Type)
	}

	b, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// freshAccessToken loads the job owner and refreshes their access token when
// expired. Queued jobs can sit past token expiry; the worker has no session
// to go through the gate.
func freshAccessToken(ctx context.Context, gdb *gorm.DB, sm *secondme.Client, userID uint64) (string, error) {
	var user models.User
	if err := gdb.WithContext(ctx).First(&user, userID).Error; err != nil {
		return "", err
	}
	if user.TokenExpiresAt.After(time.Now()) {
		return user.AccessToken, nil
	}

	tokens, err := sm.RefreshToken(ctx, user.RefreshToken)
	if err != nil {
		return "", err
	}
	expiresAt := time.Now().Add(time.Duration(tokens.ExpiresIn) * time.Second)
	err = gdb.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{
			"access_token":     tokens.AccessToken,
			"refresh_token":    tokens.RefreshToken,
			"token_expires_at": expiresAt,
		}).Error
	if err != nil {
		return "", err
	}
	return tokens.AccessToken, nil
}
