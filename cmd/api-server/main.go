package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"procurement/db"
	"procurement/db/migrations"
	"procurement/internal/audit"
	"procurement/internal/files"
	"procurement/internal/handlers"
	"procurement/internal/notify"
	"procurement/internal/scoring"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	connString := os.Getenv("POSTGRES_CONN")
	if connString == "" {
		log.Fatal("POSTGRES_CONN env variable is not set")
	}

	dbConn, err := sqlx.Connect("postgres", connString)
	if err != nil {
		log.Fatalf("Cannot connect to DB: %v", err)
	}
	defer dbConn.Close()

	migrations.Run()

	uploadDir := os.Getenv("UPLOAD_DIR")
	if uploadDir == "" {
		uploadDir = "./uploads"
	}
	fileStore, err := files.NewDiskStore(uploadDir)
	if err != nil {
		log.Fatalf("Cannot create upload dir: %v", err)
	}

	// The scorer and auditor clients are built once here and injected;
	// no lazily-initialized process globals.
	scorer := scoring.NewModelClient(os.Getenv("SCORER_URL"), 10*time.Second)
	auditor := audit.NewLLMClient(os.Getenv("AUDIT_URL"), os.Getenv("AUDIT_API_KEY"), 30*time.Second)

	var notifier notify.Notifier
	if host := os.Getenv("SMTP_HOST"); host != "" {
		notifier = notify.NewSMTPNotifier(host, os.Getenv("SMTP_PORT"), os.Getenv("SMTP_USER"), os.Getenv("SMTP_PASS"))
	} else {
		log.Print("SMTP_HOST not set, notifications will only be logged")
		notifier = notify.LogNotifier{}
	}

	store := db.NewStorage(dbConn)
	h := handlers.NewHandler(store, scorer, auditor, notifier, fileStore)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", h.PingHandler)

		r.Route("/rfq", func(r chi.Router) {
			r.Post("/", h.CreateRfqHandler)
			r.Get("/", h.GetRfqsHandler)
			r.Get("/{rfqId}", h.GetRfqHandler)
			r.Put("/{rfqId}", h.UpdateRfqHandler)
			r.Delete("/{rfqId}", h.DeleteRfqHandler)
			r.Get("/{rfqId}/quotations", h.GetRfqQuotationsHandler)
		})

		r.Route("/quotation", func(r chi.Router) {
			r.Post("/", h.CreateQuotationHandler)
			r.Get("/", h.GetQuotationsHandler)
			r.Get("/{quotationId}", h.GetQuotationHandler)
			r.Put("/{quotationId}", h.UpdateQuotationHandler)
			r.Delete("/{quotationId}", h.DeleteQuotationHandler)
		})

		r.Route("/contract", func(r chi.Router) {
			r.Post("/", h.CreateContractHandler)
			r.Get("/", h.GetContractsHandler)
			r.Get("/{contractId}", h.GetContractHandler)
			r.Put("/{contractId}", h.UpdateContractHandler)
		})
	})

	serverAddr := os.Getenv("SERVER_ADDRESS")
	if serverAddr == "" {
		serverAddr = "0.0.0.0:8080"
	}

	log.Printf("Starting server on %s", serverAddr)
	log.Fatal(http.ListenAndServe(serverAddr, r))
}
