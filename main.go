package main

import (
	"log"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"medai-backend/community"
	"medai-backend/consult"
	"medai-backend/diagnosis"
	"medai-backend/emr"
	"medai-backend/login"
	"medai-backend/medication"
	"medai-backend/qwen"
	"medai-backend/records"
	"medai-backend/session"
	"medai-backend/store"
	"medai-backend/tcm"
	"medai-backend/vision"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("[main][warn] no .env file loaded: %v", err)
	}

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}
	db, err := store.Open(dataDir)
	if err != nil {
		log.Fatalf("[main][error] open data dir %s: %v", dataDir, err)
	}

	sessions := session.NewMemoryStore()
	ai := qwen.NewClient()

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "X-Session-Id"},
	}))
	r.Static("/uploads", db.UploadDir())

	login.NewHandler(db, sessions).RegisterRoutes(r)
	records.NewHandler(db, sessions).RegisterRoutes(r)

	emrSvc := emr.NewService(ai, ai.TextModel)
	emr.NewHandler(emrSvc, ai, db, sessions).RegisterRoutes(r)

	consultSvc := consult.NewService(ai, ai.TextModel, ai.VisionModel)
	consult.NewHandler(consultSvc, db, sessions).RegisterRoutes(r)

	diagnosis.NewHandler(diagnosis.NewService(ai, ai.TextModel)).RegisterRoutes(r)
	vision.NewHandler(vision.NewService(ai, ai.VisionModel)).RegisterRoutes(r)
	tcm.NewHandler(tcm.NewService(ai, ai.VisionModel), tcm.NewArchives(db)).RegisterRoutes(r)
	community.NewHandler(db, sessions).RegisterRoutes(r)

	medMgr := medication.NewManager(db)
	medAI := medication.NewAI(ai, ai.TextModel, ai.VisionModel)
	medication.NewHandler(medMgr, medAI).RegisterRoutes(r)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("[main][error] server stopped: %v", err)
	}
}
