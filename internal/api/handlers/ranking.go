package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/wonny/evquant/internal/contracts"
	"github.com/wonny/evquant/internal/pricing"
	"github.com/wonny/evquant/internal/quarter"
	"github.com/wonny/evquant/internal/selection"
	"github.com/wonny/evquant/pkg/logger"
)

// RankingHandler serves EV/EBITDA rankings
// ⭐ SSOT: ranking API handlers live in this struct only
type RankingHandler struct {
	fundamentals contracts.FundamentalsRepository
	daily        contracts.DailyPriceRepository
	cache        contracts.QuarterlyPriceCache
	logger       *logger.Logger
}

// NewRankingHandler creates a new ranking handler. cache may be nil.
func NewRankingHandler(
	fundamentals contracts.FundamentalsRepository,
	daily contracts.DailyPriceRepository,
	cache contracts.QuarterlyPriceCache,
	log *logger.Logger,
) *RankingHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &RankingHandler{
		fundamentals: fundamentals,
		daily:        daily,
		cache:        cache,
		logger:       log.Module("api"),
	}
}

// GetRanking returns the top stocks of a quarter
// GET /api/rankings/{quarter}?top=30&stocks=1101,2330&on_missing=skip|abort
func (h *RankingHandler) GetRanking(w http.ResponseWriter, r *http.Request) {
	q, err := quarter.Parse(mux.Vars(r)["quarter"])
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	params := r.URL.Query()

	topN := selection.DefaultTopN
	if s := params.Get("top"); s != "" {
		topN, err = strconv.Atoi(s)
		if err != nil || topN <= 0 {
			respondError(w, http.StatusBadRequest, "top must be a positive integer")
			return
		}
	}

	onMissing := selection.MissingSkip
	if s := params.Get("on_missing"); s != "" {
		onMissing = selection.MissingPolicy(s)
		if !onMissing.Valid() {
			respondError(w, http.StatusBadRequest, "on_missing must be skip or abort")
			return
		}
	}

	var universe []string
	if s := params.Get("stocks"); s != "" {
		for _, id := range strings.Split(s, ",") {
			if id = strings.TrimSpace(id); id != "" {
				universe = append(universe, id)
			}
		}
	}

	resolver := pricing.NewResolver(h.daily, h.cache, h.logger)
	ranker := selection.NewRanker(h.fundamentals, resolver, topN, onMissing, h.logger)

	ranking, err := ranker.Rank(r.Context(), q, universe)
	if err != nil {
		var missing *contracts.MissingFundamentalsError
		if errors.As(err, &missing) {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.logger.WithError(err).WithField("quarter", q.String()).Error("Failed to rank")
		respondError(w, http.StatusInternalServerError, "Failed to rank")
		return
	}

	respondJSON(w, http.StatusOK, ranking)
}
