package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/s3fs-fuse/bucketfs/internal/fserr"
	"github.com/s3fs-fuse/bucketfs/internal/objectstore"
	"github.com/s3fs-fuse/bucketfs/internal/vfs"
)

// maxContentBody bounds PUT /content request bodies.
const maxContentBody = 64 << 20

// CredentialsResponse reports the state of the credential source without
// exposing any secret.
type CredentialsResponse struct {
	ProjectID   string `json:"projectId"`
	RegionID    string `json:"regionId"`
	ConfigError bool   `json:"configError"`
	LoginError  bool   `json:"loginError"`
	HasToken    bool   `json:"hasToken"`
}

// ContentResponse is returned by GET /content.
type ContentResponse struct {
	Path        string      `json:"path"`
	Format      string      `json:"format"`
	ContentType string      `json:"contentType"`
	Content     interface{} `json:"content"`
	Size        int64       `json:"size"`
}

type saveRequest struct {
	Content json.RawMessage `json:"content"`
}

type folderRequest struct {
	Path       string `json:"path"`
	FolderName string `json:"folderName"`
}

type renameRequest struct {
	OldPath string `json:"oldPath"`
	NewPath string `json:"newPath"`
}

type logRequest struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := s.provider.GetCredentials(r.Context())
	if err != nil {
		s.writeError(w, fserr.Wrap(fserr.TransportFailure, "credentials", "", err))
		return
	}
	if creds.ConfigError {
		s.log.WithField("request_id", requestIDFrom(r.Context())).Warn("Credential source is not configured")
	}
	s.writeJSON(w, http.StatusOK, CredentialsResponse{
		ProjectID:   creds.ProjectID,
		RegionID:    creds.RegionID,
		ConfigError: creds.ConfigError,
		LoginError:  creds.LoginError,
		HasToken:    creds.IsValid(),
	})
}

func (s *Server) handleListBuckets(w http.ResponseWriter, r *http.Request) {
	buckets, err := s.fs.ListContainers(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	type bucketResponse struct {
		Name    string `json:"name"`
		Created int64  `json:"created"`
	}
	resp := make([]bucketResponse, 0, len(buckets))
	for _, b := range buckets {
		resp = append(resp, bucketResponse{Name: b.Name, Created: b.Created.Unix()})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// requirePath returns the path query parameter, or writes a 400.
func (s *Server) requirePath(w http.ResponseWriter, r *http.Request) (string, bool) {
	path := r.URL.Query().Get("path")
	if path == "" {
		s.writeBadRequest(w, "missing required parameter: path")
		return "", false
	}
	return path, true
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	path, ok := s.requirePath(w, r)
	if !ok {
		return
	}
	entries, err := s.fs.List(r.Context(), path)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []vfs.Entry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleStat(w http.ResponseWriter, r *http.Request) {
	path, ok := s.requirePath(w, r)
	if !ok {
		return
	}
	entry, err := s.fs.Stat(r.Context(), path)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *Server) parseFormat(w http.ResponseWriter, r *http.Request) (objectstore.Format, bool) {
	format, err := objectstore.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeBadRequest(w, err.Error())
		return "", false
	}
	return format, true
}

func (s *Server) handleGetContent(w http.ResponseWriter, r *http.Request) {
	path, ok := s.requirePath(w, r)
	if !ok {
		return
	}
	format, ok := s.parseFormat(w, r)
	if !ok {
		return
	}

	content, err := s.fs.Read(r.Context(), path, format)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ContentResponse{
		Path:        path,
		Format:      string(content.Format),
		ContentType: content.ContentType,
		Content:     content.Value(),
		Size:        content.Info.Size,
	})
}

// handleSaveContent accepts {"content": ...}. For json the value is stored
// as is; for text and base64 it must be a JSON string.
func (s *Server) handleSaveContent(w http.ResponseWriter, r *http.Request) {
	path, ok := s.requirePath(w, r)
	if !ok {
		return
	}
	format, ok := s.parseFormat(w, r)
	if !ok {
		return
	}

	var req saveRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxContentBody)).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid request body")
		return
	}
	if len(req.Content) == 0 {
		s.writeBadRequest(w, "missing required field: content")
		return
	}

	var value interface{} = req.Content
	if format != objectstore.FormatJSON {
		var str string
		if err := json.Unmarshal(req.Content, &str); err != nil {
			s.writeError(w, fserr.New(fserr.InvalidContent, "save", path, string(format)+" content must be a JSON string"))
			return
		}
		value = str
	}

	entry, err := s.fs.Save(r.Context(), path, format, value)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	path, ok := s.requirePath(w, r)
	if !ok {
		return
	}
	data, entry, err := s.fs.Download(r.Context(), path)
	if err != nil {
		s.writeError(w, err)
		return
	}

	contentType := entry.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(entry.Name, `"`, "")+`"`)
	w.Header().Set("Last-Modified", entry.LastModified.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.log.WithError(err).WithField("path", path).Warn("Failed to write download body")
	}
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req folderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid request body")
		return
	}
	if req.Path == "" || req.FolderName == "" {
		s.writeBadRequest(w, "missing required parameters")
		return
	}

	entry, err := s.fs.Mkdir(r.Context(), req.Path, req.FolderName)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	path, ok := s.requirePath(w, r)
	if !ok {
		return
	}
	if err := s.fs.Remove(r.Context(), path); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	path, ok := s.requirePath(w, r)
	if !ok {
		return
	}
	if err := s.fs.RemoveAll(r.Context(), path); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid request body")
		return
	}
	if req.OldPath == "" || req.NewPath == "" {
		s.writeBadRequest(w, "missing required parameters")
		return
	}

	if err := s.fs.Rename(r.Context(), req.OldPath, req.NewPath); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"oldPath": req.OldPath, "newPath": req.NewPath})
}

// handleClientLog forwards a browser-side log line into the server log.
func (s *Server) handleClientLog(w http.ResponseWriter, r *http.Request) {
	var req logRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid request body")
		return
	}
	level, err := logrus.ParseLevel(req.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	if level < logrus.ErrorLevel {
		level = logrus.ErrorLevel
	}
	s.log.WithFields(logrus.Fields{
		"source":     "client",
		"request_id": requestIDFrom(r.Context()),
	}).Log(level, req.Message)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

// handleServiceURLs reports the endpoints the server talks to, so a client
// can link to them.
func (s *Server) handleServiceURLs(w http.ResponseWriter, r *http.Request) {
	urls := make(map[string]string, len(s.config.ServiceURLs))
	for name, url := range s.config.ServiceURLs {
		if url != "" {
			urls[name] = url
		}
	}
	s.log.WithField("urls", urls).Debug("Service URL map")
	s.writeJSON(w, http.StatusOK, urls)
}
