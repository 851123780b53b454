package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reportserver/blobstore"
	"reportserver/database"
	"reportserver/definitions"
	"reportserver/generator"
	"reportserver/server"
	"reportserver/warehouse"
)

func main() {
	log.Println("Запуск Report Server...")

	// Загружаем конфигурацию
	config, err := server.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// База определений отчетов и истории версий
	db, err := database.NewDBWithConfig(config.DatabasePath, database.DBConfig{
		MaxOpenConns:    config.MaxOpenConns,
		MaxIdleConns:    config.MaxIdleConns,
		ConnMaxLifetime: config.ConnMaxLifetime,
	})
	if err != nil {
		log.Fatalf("Ошибка создания базы данных: %v", err)
	}
	defer db.Close()
	log.Printf("Используется база данных: %s", config.DatabasePath)

	// Хранилище HTML шаблонов
	var blobs blobstore.Store
	if config.GCSBucket != "" {
		gcs, err := blobstore.NewGCSStore(ctx, blobstore.GCSConfig{
			Bucket:          config.GCSBucket,
			CredentialsFile: config.CredentialsFile,
		})
		if err != nil {
			log.Fatalf("Ошибка подключения к GCS: %v", err)
		}
		defer gcs.Close()

		pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := gcs.Ping(pingCtx); err != nil {
			log.Printf("⚠ Бакет %s недоступен: %v", config.GCSBucket, err)
		}
		pingCancel()
		blobs = gcs
		log.Printf("Шаблоны хранятся в gs://%s", config.GCSBucket)
	} else {
		log.Println("⚠ GCS_BUCKET_NAME не задан, шаблоны хранятся в памяти и пропадут при перезапуске")
		blobs = blobstore.NewMemoryStore()
	}

	store := definitions.NewStore(db, blobs, definitions.Options{
		SystemInstructionPath:    config.SystemInstructionPath,
		DefaultSystemInstruction: generator.DefaultSystemInstruction,
	})

	deps := server.Dependencies{Definitions: store}

	// BigQuery нужен для схем и выполнения отчетов
	if config.GCPProjectID != "" {
		bq, err := warehouse.NewClient(ctx, warehouse.Config{
			ProjectID:       config.GCPProjectID,
			Location:        config.BigQueryLocation,
			CredentialsFile: config.CredentialsFile,
		})
		if err != nil {
			log.Printf("⚠ BigQuery недоступен: %v", err)
		} else {
			defer bq.Close()
			deps.Schema = bq
			deps.Data = bq
			log.Printf("BigQuery: проект %s, регион %s", config.GCPProjectID, config.BigQueryLocation)
		}
	} else {
		log.Println("⚠ GCP_PROJECT_ID не задан, выполнение отчетов недоступно")
	}

	if config.GeminiAPIKey != "" {
		deps.Generator = generator.NewClient(generator.Config{
			APIKey:            config.GeminiAPIKey,
			Model:             config.GeminiModel,
			Timeout:           config.GeminiTimeout,
			RequestsPerSecond: config.GeminiRequestsPerSecond,
			Retry: generator.RetryConfig{
				MaxRetries:        config.GeminiMaxRetries,
				InitialDelay:      500 * time.Millisecond,
				MaxDelay:          10 * time.Second,
				BackoffMultiplier: 2.0,
			},
		})
		log.Printf("Генератор шаблонов: %s", orDefault(config.GeminiModel, generator.DefaultModel))
	} else {
		log.Println("⚠ GEMINI_API_KEY не задан, генерация шаблонов недоступна")
	}

	srv := server.NewServer(config, deps)

	// Запускаем сервер в отдельной горутине
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("Ошибка запуска сервера: %v", err)
		}
	}()

	// Обработка сигналов для graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Printf("Сервер запущен на порту %s", config.Port)
	log.Printf("API доступно по адресу: http://localhost:%s", config.Port)
	log.Println("Для остановки нажмите Ctrl+C")

	<-sigChan
	log.Println("Получен сигнал завершения...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Ошибка при остановке сервера: %v", err)
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
