package service

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/moffermann/school-attendance-sub001/pkg/errors"
	"github.com/moffermann/school-attendance-sub001/pkg/storage"
)

// EvidenceKind distinguishes the stored artifact types.
type EvidenceKind string

const (
	EvidencePhoto     EvidenceKind = "photo"
	EvidenceSignature EvidenceKind = "signature"
)

var allowedEvidenceExt = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// EvidenceService stores verification photos and signatures on disk and
// issues short-lived signed URLs for retrieval. Files are namespaced per
// withdrawal and never served directly.
type EvidenceService struct {
	store  *storage.LocalStorage
	signer *storage.SignedURLSigner
	logger *zap.Logger
}

// NewEvidenceService constructs the evidence service.
func NewEvidenceService(store *storage.LocalStorage, signer *storage.SignedURLSigner, logger *zap.Logger) *EvidenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EvidenceService{store: store, signer: signer, logger: logger}
}

// Save stores one evidence file and returns its relative path.
func (s *EvidenceService) Save(withdrawalID string, kind EvidenceKind, filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedEvidenceExt[ext] {
		return "", appErrors.Clone(appErrors.ErrValidation, "unsupported evidence file type")
	}
	if kind != EvidencePhoto && kind != EvidenceSignature {
		return "", appErrors.Clone(appErrors.ErrValidation, "unknown evidence kind")
	}

	relPath := filepath.Join(withdrawalID, fmt.Sprintf("%s-%s%s", kind, uuid.NewString(), ext))
	stored, err := s.store.SaveStream(relPath, r)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store evidence")
	}
	return stored, nil
}

// SignedURL issues a token-bearing URL path for one stored evidence file.
func (s *EvidenceService) SignedURL(withdrawalID, relPath string) (string, time.Time, error) {
	token, expiresAt, err := s.signer.Generate(withdrawalID, relPath)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign url")
	}
	return token, expiresAt, nil
}

// Open resolves a signed token back to the stored file.
func (s *EvidenceService) Open(token string) (io.ReadCloser, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired evidence token")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "evidence file not found")
	}
	return file, relPath, nil
}
