// Community HTTP handlers.
//
//   - GET /community/messages   (paginated global room history, ETag support)
//   - GET /areas                (clustered incident map markers)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-incident-hub/internal/geo"
	"github.com/tbourn/go-incident-hub/internal/hub"
	"github.com/tbourn/go-incident-hub/internal/realtime"
)

// AreasResponse is the map layer: one marker per cluster.
type AreasResponse struct {
	Markers []geo.Marker `json:"markers"`
}

var mapLink = hub.MapLink

// ListCommunityMessages godoc
// @ID          listCommunityMessages
// @Summary     List community messages
// @Description Returns a page of the global room history, oldest first. Supports weak ETag via If-None-Match.
// @Tags        Community
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListMessagesResponse
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /community/messages [get]
func (h *Handlers) ListCommunityMessages(c *gin.Context) {
	h.roomHistory(c, realtime.Global, 0)
}

// Areas godoc
// @ID          listAreas
// @Summary     Incident areas
// @Description Clusters every SOS and ticket-report location; each marker's radius grows with the number of incidents it absorbed.
// @Tags        Community
// @Produce     json
//
// @Success     200  {object} handlers.AreasResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /areas [get]
func (h *Handlers) Areas(c *gin.Context) {
	clusters, err := h.hub.Areas(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, AreasResponse{Markers: geo.Markers(clusters)})
}
