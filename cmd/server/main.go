package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"
	"github.com/rs/cors"

	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/auth"
	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/config"
	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/database"
	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/exam"
	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/generator"
	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/models"
	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/questions"
	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/report"
	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/stt"
)

func main() {
	cfg := config.Load()

	db, err := database.Connect()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Content generation and evaluation share the Groq key but use
	// different models: a large one for writing questions, a small fast one
	// for pass/fail grading.
	gen := generator.New(generator.Config{
		Kind:           cfg.GeneratorKind,
		GroqAPIKey:     cfg.GroqAPIKey,
		GroqModel:      cfg.GroqModel,
		AnthropicModel: cfg.AnthropicModel,
	})
	var evalLLM generator.LLMClient
	if cfg.GroqAPIKey != "" {
		evalLLM = generator.NewGroqClient(cfg.GroqAPIKey, cfg.GroqEvalModel)
	}
	evaluator := generator.NewEvaluator(evalLLM)

	questionStore := questions.NewStore(db)
	questionService := questions.NewService(questionStore, gen)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	if err := questionStore.EnsureListeningPools(ctx, cfg.ListeningDataDir); err != nil {
		log.Printf("WARN: listening pool load failed: %v", err)
	}
	cancel()

	reportService := report.NewService(report.NewStore(db), evalLLM)

	sessionStore := exam.NewSQLStore(db)
	startLevel, ok := models.ParseLevel(cfg.DefaultStartLevel)
	if !ok {
		startLevel = models.LevelB2
	}
	examService := exam.NewService(
		sessionStore,
		questionStore,
		exam.NewQuestionSource(sessionStore, questionStore, gen, cfg.GenerationMaxRetries),
		exam.NewAnswerRecorder(sessionStore, evaluator),
		questionService,
		reportService,
		exam.Settings{
			StartLevel:    startLevel,
			TimeLimits:    moduleMap(cfg.ModuleTimeLimits),
			Counts:        moduleMap(cfg.QuestionCounts),
			PrefillFactor: cfg.PoolPrefillFactor,
		},
	)

	authHandler := auth.NewHandler(db, cfg.JWTSecret)
	examHandler := exam.NewHandler(examService)
	reportHandler := report.NewHandler(reportService)
	sttHandler := stt.NewHandler(stt.NewService(cfg.GroqAPIKey, cfg.GroqSTTModel, cfg.SpeechUploadDir))

	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	// Public routes
	api.HandleFunc("/auth/register", authHandler.Register).Methods("POST")
	api.HandleFunc("/auth/login", authHandler.Login).Methods("POST")

	// Protected routes
	protected := api.PathPrefix("").Subrouter()
	protected.Use(auth.Middleware(cfg.JWTSecret))
	protected.HandleFunc("/auth/me", authHandler.GetCurrentUser).Methods("GET")

	protected.HandleFunc("/exam/start", examHandler.StartExam).Methods("POST")
	protected.HandleFunc("/exam/{id:[0-9]+}/next", examHandler.GetNextQuestion).Methods("GET")
	protected.HandleFunc("/exam/{id:[0-9]+}/answer", examHandler.SubmitAnswer).Methods("POST")
	protected.HandleFunc("/exam/{id:[0-9]+}/listening", examHandler.SubmitListeningBlock).Methods("POST")
	protected.HandleFunc("/exam/{id:[0-9]+}/start_module", examHandler.StartModule).Methods("POST")
	protected.HandleFunc("/exam/{id:[0-9]+}/finish_module", examHandler.FinishModule).Methods("POST")
	protected.HandleFunc("/exam/{id:[0-9]+}/report", reportHandler.GetReport).Methods("GET")
	protected.HandleFunc("/exam/{id:[0-9]+}/speech", sttHandler.Transcribe).Methods("POST")

	// Admin routes
	admin := protected.PathPrefix("/admin").Subrouter()
	admin.Use(auth.RequireAdmin)
	admin.HandleFunc("/questions/load_listening", func(w http.ResponseWriter, req *http.Request) {
		if err := questionStore.EnsureListeningPools(req.Context(), cfg.ListeningDataDir); err != nil {
			log.Printf("WARN: listening pool reload failed: %v", err)
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"listening pool load failed"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"listening pools loaded"}`))
	}).Methods("POST")
	admin.HandleFunc("/questions/prefill", func(w http.ResponseWriter, req *http.Request) {
		go topUpPools(questionService, cfg)
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"status":"prefill started"}`))
	}).Methods("POST")

	// Listening audio assets
	r.PathPrefix("/static/audio/").Handler(
		http.StripPrefix("/static/audio/", http.FileServer(http.Dir(cfg.ListeningDataDir))))

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	if cfg.PoolTopupCron != "" {
		c := cron.New()
		if _, err := c.AddFunc(cfg.PoolTopupCron, func() { topUpPools(questionService, cfg) }); err != nil {
			log.Fatalf("Invalid POOL_TOPUP_CRON: %v", err)
		}
		c.Start()
		defer c.Stop()
		log.Printf("Pool top-up scheduled: %s", cfg.PoolTopupCron)
	}

	// CORS
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(r)

	log.Printf("Server starting on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, corsHandler); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func moduleMap(in map[string]int) map[models.Module]int {
	out := make(map[models.Module]int, len(in))
	for name, v := range in {
		out[models.Module(name)] = v
	}
	return out
}

// topUpPools refreshes every generated module around the default start
// level, where most sessions draw from.
func topUpPools(svc *questions.Service, cfg *config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	level, ok := models.ParseLevel(cfg.DefaultStartLevel)
	if !ok {
		level = models.LevelB2
	}
	for _, l := range []models.CEFRLevel{level, models.LevelB1, models.LevelC1} {
		svc.TopUpAll(ctx, l, cfg.PoolPrefillFactor*maxCount(cfg.QuestionCounts))
	}
}

func maxCount(counts map[string]int) int {
	max := 0
	for _, n := range counts {
		if n > max {
			max = n
		}
	}
	return max
}
