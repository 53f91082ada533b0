package app

import (
	"gorm.io/gorm"

	"github.com/grovelabs/leafsense-backend/internal/logger"
	"github.com/grovelabs/leafsense-backend/internal/repos"
)

type Repos struct {
	Symptom            repos.SymptomRepo
	Disease            repos.DiseaseRepo
	LeafImage          repos.LeafImageRepo
	ModelVersion       repos.ModelVersionRepo
	SymptomObservation repos.SymptomObservationRepo
	Prediction         repos.PredictionRepo
	PredictionLog      repos.PredictionLogRepo
	Feedback           repos.FeedbackRepo
	TrainingData       repos.TrainingDataRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Symptom:            repos.NewSymptomRepo(db, log),
		Disease:            repos.NewDiseaseRepo(db, log),
		LeafImage:          repos.NewLeafImageRepo(db, log),
		ModelVersion:       repos.NewModelVersionRepo(db, log),
		SymptomObservation: repos.NewSymptomObservationRepo(db, log),
		Prediction:         repos.NewPredictionRepo(db, log),
		PredictionLog:      repos.NewPredictionLogRepo(db, log),
		Feedback:           repos.NewFeedbackRepo(db, log),
		TrainingData:       repos.NewTrainingDataRepo(db, log),
	}
}
