package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-mod-assistant/internal/domain"
	"github.com/tbourn/go-mod-assistant/internal/repo"
	"github.com/tbourn/go-mod-assistant/internal/utils"
)

// ListInfractionsResponse is one page of the audit log, newest first.
type ListInfractionsResponse struct {
	Infractions []domain.Infraction `json:"infractions"`
	Pagination  Pagination          `json:"pagination"`
}

// ListInfractions godoc
// @ID          listInfractions
// @Summary     List infractions (paginated)
// @Description Pages through the audit log, newest first, optionally filtered by guild and user. The weak ETag changes whenever a matching row is appended, so polling dashboards get 304s in between.
// @Tags        Infractions
// @Produce     json
//
// @Param       guild_id       query   string  false "Guild snowflake"             example(81384788765712384)
// @Param       user_id        query   string  false "User snowflake"              example(80351110224678912)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"                 minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"              minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListInfractionsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /infractions [get]
func (h *Handlers) ListInfractions(c *gin.Context) {
	ctx := c.Request.Context()
	guild, okG := queryID(c, "guild_id")
	if !okG {
		return
	}
	user, okU := queryID(c, "user_id")
	if !okU {
		return
	}
	f := repo.InfractionFilter{GuildID: guild, UserID: user}
	p := utils.ParsePaging(c.Query("page"), c.Query("page_size"), 20, 100)

	total, latest, err := repo.InfractionsStats(ctx, h.DB, f)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	var ts int64
	if latest != nil {
		ts = latest.UnixNano()
	}
	etag := fmt.Sprintf(`W/"infractions:%s:%s:%d:%d:%d:%d"`, guild, user, total, ts, p.Page, p.PageSize)
	c.Header("ETag", etag)
	if c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return
	}

	items, err := repo.ListInfractionsPage(ctx, h.DB, f, p.Offset(), p.PageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if items == nil {
		items = []domain.Infraction{}
	}
	pages := utils.TotalPages(total, p.PageSize)
	ok(c, http.StatusOK, ListInfractionsResponse{
		Infractions: items,
		Pagination: Pagination{
			Page:       p.Page,
			PageSize:   p.PageSize,
			Total:      total,
			TotalPages: pages,
			HasNext:    p.Page < pages,
		},
	})
}
