// Command entitystored is the entity store's HTTP server: it wires the ID
// Registry, Blob Store, Metadata Index, Revision Pipeline, and Turtle
// Serializer together behind the apiserver routes, the way the teacher's
// cli package wires RabbitMQ/CouchDB/JWT behind its own Echo server.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"entitystore.dev/apiserver"
	"entitystore.dev/blobstore"
	"entitystore.dev/entitycfg"
	"entitystore.dev/metadata"
	"entitystore.dev/metadata/audit"
	"entitystore.dev/obslog"
	"entitystore.dev/pipeline"
	"entitystore.dev/rdf"
	"entitystore.dev/registry"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "entitystored",
	Short: "versioned entity store HTTP server",
	Long: `entitystored serves the versioned entity store API: create and
update Wikibase-compatible entities, browse their revision history, and
render an entity's current revision as Turtle RDF, backed by an S3-compatible blob store
and a Postgres metadata index.`,
	RunE: runServer,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./entitystored.yaml)")
	entitycfg.BindFlags(viper.GetViper(), rootCmd.PersistentFlags())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("entitystored")
	}
	viper.SetEnvPrefix("ENTITYSTORE")
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := entitycfg.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := obslog.New(obslog.Config{
		Level:   obslog.Level(cfg.LogLevel),
		Format:  cfg.LogFormat,
		Service: "entitystored",
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := metadata.Open(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("open metadata database: %w", err)
	}
	defer db.Close()

	gen := registry.NewGenerator()
	index := metadata.NewIndex(db, gen)

	blobs, err := newBlobStore(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	auditRecorder, err := audit.Open(cfg.Postgres.AuditDSN)
	if err != nil {
		return fmt.Errorf("open audit database: %w", err)
	}

	pl := pipeline.New(index, blobs, index)
	pl.Audit = auditRecorder

	properties := rdf.NewRegistry()
	if f, err := os.Open("properties.json"); err == nil {
		defer f.Close()
		if loaded, err := rdf.LoadRegistry(f); err == nil {
			properties = loaded
		} else {
			logger.WithError(err).Warn("failed to parse properties.json, serving with an empty property registry")
		}
	}

	server := &apiserver.Server{
		Pipeline:       pl,
		Meta:           index,
		Blobs:          blobs,
		Properties:     properties,
		Repository:     cfg.Repository,
		Logger:         logger,
		WriteRateLimit: cfg.WriteRateLimit,
		BlobHealth:     blobs,
		MetaHealth:     db,
	}
	e := apiserver.New(server)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.WithField("addr", addr).Info("starting entitystored")
	if err := apiserver.StartWithGracefulShutdown(ctx, e, addr, cfg.Server.ShutdownTimeout); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
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

	store := blobstore.NewS3Store(client, cfg.Bucket)
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}
