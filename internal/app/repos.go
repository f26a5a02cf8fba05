package app

import (
	"gorm.io/gorm"

	crawlrepos "github.com/yungbote/sitescout-backend/internal/data/repos/crawl"
	distrepos "github.com/yungbote/sitescout-backend/internal/data/repos/districts"
	docrepos "github.com/yungbote/sitescout-backend/internal/data/repos/documents"
	scorerepos "github.com/yungbote/sitescout-backend/internal/data/repos/scoring"
	"github.com/yungbote/sitescout-backend/internal/pkg/logger"
)

type Repos struct {
	District   distrepos.DistrictRepo
	Batch      crawlrepos.BatchRepo
	Attempt    crawlrepos.AttemptRepo
	Correction crawlrepos.URLCorrectionRepo
	Document   docrepos.DocumentRepo
	Chunk      docrepos.DocumentChunkRepo
	Score      scorerepos.KeywordScoreRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		District:   distrepos.NewDistrictRepo(db, log),
		Batch:      crawlrepos.NewBatchRepo(db, log),
		Attempt:    crawlrepos.NewAttemptRepo(db, log),
		Correction: crawlrepos.NewURLCorrectionRepo(db, log),
		Document:   docrepos.NewDocumentRepo(db, log),
		Chunk:      docrepos.NewDocumentChunkRepo(db, log),
		Score:      scorerepos.NewKeywordScoreRepo(db, log),
	}
}
