package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-mod-assistant/internal/leaderboard"
	"github.com/tbourn/go-mod-assistant/internal/utils"
)

// LeaderboardResponse is one page of the live karma ranking.
type LeaderboardResponse struct {
	Entries    []leaderboard.RankedEntry `json:"entries"`
	Pagination Pagination                `json:"pagination"`
}

// Leaderboard godoc
// @ID          getLeaderboard
// @Summary     Karma leaderboard (paginated)
// @Description Pages through the live karma ranking. Unlike sessions opened in chat, the ranking is not frozen between requests.
// @Tags        Community
// @Produce     json
//
// @Param       page       query  int  false "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false "Items per page"  minimum(1) maximum(100)
//
// @Success     200  {object} handlers.LeaderboardResponse
// @Failure     401  {object} handlers.ErrorResponse "Missing or wrong admin token"
// @Router      /leaderboard [get]
func (h *Handlers) Leaderboard(c *gin.Context) {
	p := utils.ParsePaging(c.Query("page"), c.Query("page_size"), h.Board.PageSize(), 100)
	sorted := h.Board.Sorted()

	entries := []leaderboard.RankedEntry{}
	for i := p.Offset(); i < len(sorted) && i < p.Offset()+p.PageSize; i++ {
		entries = append(entries, leaderboard.RankedEntry{Rank: i + 1, LeaderboardEntry: sorted[i]})
	}
	total := int64(len(sorted))
	pages := utils.TotalPages(total, p.PageSize)
	ok(c, http.StatusOK, LeaderboardResponse{
		Entries: entries,
		Pagination: Pagination{
			Page:       p.Page,
			PageSize:   p.PageSize,
			Total:      total,
			TotalPages: pages,
			HasNext:    p.Page < pages,
		},
	})
}

// ListRules godoc
// @ID          listRules
// @Summary     List rules
// @Description Returns every rule in id order.
// @Tags        Community
// @Produce     json
// @Success     200  {object} map[string][]services.Rule
// @Failure     401  {object} handlers.ErrorResponse "Missing or wrong admin token"
// @Router      /rules [get]
func (h *Handlers) ListRules(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{"rules": h.Rules.All()})
}

// ListStats godoc
// @ID          listStats
// @Summary     Command statistics
// @Description Returns command usage counts, most used first.
// @Tags        Community
// @Produce     json
// @Success     200  {object} map[string][]services.CommandCount
// @Failure     401  {object} handlers.ErrorResponse "Missing or wrong admin token"
// @Router      /stats [get]
func (h *Handlers) ListStats(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{"commands": h.Stats.All()})
}
