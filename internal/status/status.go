// Package status exposes the progress of a running
// session as a JSON HTTP API.
package status

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/namvu9/btcore/internal/errors"
	"github.com/namvu9/btcore/internal/session"
	"github.com/namvu9/btcore/pkg/btorrent/pieces"
	"github.com/namvu9/btcore/pkg/btorrent/tracker"
)

// Source is what the API reports on
type Source interface {
	Stat() session.Stat
	PieceManager() *pieces.Manager
	Trackers() []tracker.TrackerStat
}

type PiecesResponse struct {
	Count    int    `json:"count"`
	Have     []int  `json:"have"`
	Bitfield string `json:"bitfield"`
}

type PieceResponse struct {
	Index    int  `json:"index"`
	Length   int  `json:"length"`
	Complete bool `json:"complete"`
}

type TrackerResponse struct {
	URL          string    `json:"url"`
	Peers        int       `json:"peers"`
	Seeders      int       `json:"seeders"`
	Leechers     int       `json:"leechers"`
	NextAnnounce time.Time `json:"nextAnnounce"`
	Error        string    `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewRouter routes
//
//	GET /api/torrent
//	GET /api/pieces
//	GET /api/pieces/{index}
//	GET /api/trackers
func NewRouter(src Source) *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/torrent", torrentHandler(src)).Methods(http.MethodGet)
	api.HandleFunc("/pieces", piecesHandler(src)).Methods(http.MethodGet)
	api.HandleFunc("/pieces/{index:[0-9]+}", pieceHandler(src)).Methods(http.MethodGet)
	api.HandleFunc("/trackers", trackersHandler(src)).Methods(http.MethodGet)

	return r
}

func torrentHandler(src Source) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, http.StatusOK, src.Stat())
	}
}

func piecesHandler(src Source) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		have := src.PieceManager().HaveBitfield()

		indices := have.Indices()
		if indices == nil {
			indices = []int{}
		}

		writeJSON(rw, http.StatusOK, PiecesResponse{
			Count:    have.Len(),
			Have:     indices,
			Bitfield: hex.EncodeToString(have.Bytes()),
		})
	}
}

func pieceHandler(src Source) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		pm := src.PieceManager()

		index, err := strconv.Atoi(mux.Vars(r)["index"])
		if err != nil || index >= pm.PieceCount() {
			writeJSON(rw, http.StatusNotFound, errorResponse{Error: "no such piece"})
			return
		}

		writeJSON(rw, http.StatusOK, PieceResponse{
			Index:    index,
			Length:   pm.PieceLength(index),
			Complete: pm.PieceComplete(index),
		})
	}
}

func trackersHandler(src Source) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		out := []TrackerResponse{}
		for _, stat := range src.Trackers() {
			res := TrackerResponse{
				URL:          stat.Url.String(),
				Peers:        len(stat.Peers),
				Seeders:      stat.Seeders,
				Leechers:     stat.Leechers,
				NextAnnounce: stat.NextAnnounce,
			}

			if stat.Err != nil {
				res.Error = stat.Err.Error()
			}

			out = append(out, res)
		}

		writeJSON(rw, http.StatusOK, out)
	}
}

func writeJSON(rw http.ResponseWriter, code int, v interface{}) {
	data, err := json.MarshalIndent(v, "", " ")
	if err != nil {
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}

	rw.Header().Set("Content-Type", "application/json")
	rw.Header().Set("Access-Control-Allow-Origin", "*")
	rw.WriteHeader(code)
	rw.Write(data)
}

// ListenAndServe serves the API on addr until ctx is done
func ListenAndServe(ctx context.Context, addr string, src Source) error {
	var op errors.Op = "status.ListenAndServe"

	srv := &http.Server{
		Handler:      NewRouter(src),
		Addr:         addr,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("status API listening")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, op, errors.Network)
	}

	return nil
}
