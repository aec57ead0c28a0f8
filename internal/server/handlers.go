package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tilawa-app/tilawa/internal/core"
)

func (s *Server) routes() {
	r := s.router

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "ws_clients": s.hub.Count()})
	})
	r.GET("/events", WSHandler(s.hub))

	surahs := r.Group("/surahs")
	surahs.GET("", s.listSurahs)
	surahs.GET("/:id", s.getSurah)
	surahs.GET("/:id/verses", s.getVerses)

	verses := r.Group("/verses")
	verses.GET("/random", s.randomVerse)
	verses.GET("/:key", s.getVerse)
	verses.GET("/:key/tafsir", s.getTafsir)
	verses.GET("/:key/audio", s.getAudio)

	downloads := r.Group("/downloads")
	downloads.GET("", s.listDownloads)
	downloads.POST("", s.addDownload)
	downloads.DELETE("", s.clearDownloads)
	downloads.GET("/:id", s.getDownload)
	downloads.DELETE("/:id", s.deleteDownload)
	downloads.POST("/:id/retry", s.retryDownload)
	downloads.POST("/:id/cancel", s.cancelDownload)

	offline := r.Group("/offline")
	offline.GET("", s.offlineStatus)
	offline.DELETE("", s.clearDownloads)
	offline.POST("/surahs/:id", s.saveSurah)
	offline.DELETE("/surahs/:id", s.removeSurah)

	r.GET("/storage", s.storageUsage)
	r.GET("/cache", s.cacheStats)
}

// fail writes err as an APIError with the matching status.
func fail(c *gin.Context, err error) {
	status, body := core.Classify(err)
	c.AbortWithStatusJSON(status, body)
}

func surahID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(strings.TrimSpace(c.Param("id")))
	if err != nil {
		fail(c, fmt.Errorf("%w: surah id %q is not a number", core.ErrInvalidRequest, c.Param("id")))
		return 0, false
	}
	return id, true
}

func (s *Server) listSurahs(c *gin.Context) {
	res, err := s.svc.SurahList(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) getSurah(c *gin.Context) {
	id, ok := surahID(c)
	if !ok {
		return
	}
	res, err := s.svc.Surah(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// getVerses prefers text saved for offline reading.
func (s *Server) getVerses(c *gin.Context) {
	id, ok := surahID(c)
	if !ok {
		return
	}
	res, err := s.svc.Verses(c.Request.Context(), id, c.Query("edition"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) randomVerse(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.RandomVerse(c.Request.Context()))
}

func (s *Server) getVerse(c *gin.Context) {
	res, err := s.svc.Verse(c.Request.Context(), c.Param("key"), c.Query("edition"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) getTafsir(c *gin.Context) {
	res, err := s.svc.Tafsir(c.Request.Context(), c.Param("key"), c.Query("edition"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) getAudio(c *gin.Context) {
	res, err := s.svc.AudioURL(c.Request.Context(), c.Param("key"), c.Query("reciter"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) listDownloads(c *gin.Context) {
	items, err := s.svc.List()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (s *Server) addDownload(c *gin.Context) {
	var req core.AddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, fmt.Errorf("%w: %v", core.ErrInvalidRequest, err))
		return
	}
	it, err := s.svc.Add(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, it)
}

func (s *Server) getDownload(c *gin.Context) {
	it, err := s.svc.GetStatus(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, it)
}

func (s *Server) retryDownload(c *gin.Context) {
	it, err := s.svc.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, it)
}

func (s *Server) cancelDownload(c *gin.Context) {
	if err := s.svc.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteDownload(c *gin.Context) {
	if err := s.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) clearDownloads(c *gin.Context) {
	if err := s.svc.ClearAll(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) offlineStatus(c *gin.Context) {
	m, err := s.svc.OfflineStatus(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) saveSurah(c *gin.Context) {
	id, ok := surahID(c)
	if !ok {
		return
	}
	text, err := s.svc.SaveSurahOffline(c.Request.Context(), id, c.Query("edition"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, text)
}

func (s *Server) removeSurah(c *gin.Context) {
	id, ok := surahID(c)
	if !ok {
		return
	}
	if err := s.svc.RemoveOffline(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) storageUsage(c *gin.Context) {
	u, err := s.svc.StorageUsage(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *Server) cacheStats(c *gin.Context) {
	st, err := s.svc.CacheStats(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
