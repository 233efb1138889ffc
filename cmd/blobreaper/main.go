// Command blobreaper runs a single orphan-blob sweep against the blob
// store and metadata index, guarded by a Redis lock so that only one
// replica of a horizontally-scaled deployment sweeps at a time. It is
// meant to be invoked on a schedule (cron, a Kubernetes CronJob) rather
// than run as a long-lived daemon.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"entitystore.dev/blobreaper"
	"entitystore.dev/blobstore"
	"entitystore.dev/entitycfg"
	"entitystore.dev/metadata"
	"entitystore.dev/obslog"
	"entitystore.dev/registry"
)

var (
	cfgFile     string
	gracePeriod time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "blobreaper",
	Short: "sweeps orphaned pending revision blobs",
	RunE:  runSweep,
}

func init() {
	entitycfg.BindFlags(viper.GetViper(), rootCmd.PersistentFlags())
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./entitystored.yaml)")
	rootCmd.Flags().DurationVar(&gracePeriod, "grace-period", 24*time.Hour, "minimum age of a pending blob before it's eligible for reaping")
}

func main() {
	cobra.OnInitialize(func() {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			viper.AddConfigPath(".")
			viper.SetConfigType("yaml")
			viper.SetConfigName("entitystored")
		}
		viper.SetEnvPrefix("ENTITYSTORE")
		viper.AutomaticEnv()
		viper.ReadInConfig()
	})

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := entitycfg.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := obslog.New(obslog.Config{Level: obslog.Level(cfg.LogLevel), Format: cfg.LogFormat, Service: "blobreaper"})
	ctx := context.Background()

	owner, _ := os.Hostname()
	owner = fmt.Sprintf("%s:%d", owner, os.Getpid())

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redisClient.Close()

	lock := blobreaper.NewLock(redisClient, owner, 5*time.Minute)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !acquired {
		logger.Info("another replica already holds the reaper lock, exiting")
		return nil
	}
	defer lock.Release(ctx)

	db, err := metadata.Open(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("open metadata database: %w", err)
	}
	defer db.Close()
	index := metadata.NewIndex(db, registry.NewGenerator())

	blobs, err := newBlobStore(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	sweeper := &blobreaper.Sweeper{
		Blobs:       blobs,
		Meta:        index,
		GracePeriod: gracePeriod,
		Logger:      logger,
	}

	result, err := sweeper.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	logger.WithField("considered", result.Considered).
		WithField("deleted", result.Deleted).
		WithField("kept", result.Kept).
		Info("sweep complete")
	return nil
}

func newBlobStore(ctx context.Context, cfg entitycfg.BlobConfig) (*blobstore.S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.Endpoint != "" && cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return blobstore.NewS3Store(client, cfg.Bucket), nil
}
