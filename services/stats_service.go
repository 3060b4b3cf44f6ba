package services

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/itish2003/docchat/logging"
	"github.com/itish2003/docchat/models"
	"github.com/itish2003/docchat/vectorindex"
)

// StatsService reports the size of the collection.
type StatsService struct {
	index      *Lazy[vectorindex.Index]
	collection string
	dimension  int
	log        *logrus.Entry
}

func NewStatsService(index *Lazy[vectorindex.Index], collection string, dimension int, log logrus.FieldLogger) *StatsService {
	return &StatsService{
		index:      index,
		collection: collection,
		dimension:  dimension,
		log:        logging.Component(log, "stats"),
	}
}

// Stats never fails. When the index cannot be read it reports zero points,
// the configured dimension and the reason in Error. A collection that does not
// exist yet is simply empty.
func (s *StatsService) Stats(ctx context.Context) models.Stats {
	stats := models.Stats{
		VectorDimension: s.dimension,
		CollectionName:  s.collection,
	}

	idx, err := s.index.Get(ctx)
	if err != nil {
		return s.degraded(stats, err)
	}
	info, err := idx.CollectionInfo(ctx, s.collection)
	switch {
	case errors.Is(err, vectorindex.ErrCollectionNotFound):
		return stats
	case err != nil:
		return s.degraded(stats, err)
	}

	stats.TotalPoints = info.PointsCount
	stats.HasData = info.PointsCount > 0
	if info.Dimension > 0 {
		stats.VectorDimension = info.Dimension
	}
	return stats
}

func (s *StatsService) degraded(stats models.Stats, err error) models.Stats {
	s.log.WithError(err).Warn("could not read collection info")
	stats.Error = err.Error()
	return stats
}
