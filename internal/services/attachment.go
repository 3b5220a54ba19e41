package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/taskhub/apiserver/internal/apperr"
	"github.com/taskhub/apiserver/internal/storage"
	"github.com/taskhub/apiserver/types"
)

// MaxAttachmentBytes bounds a single uploaded attachment.
const MaxAttachmentBytes = 25 << 20

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// PutAttachment stores data as the task's attachment, replacing any previous one.
func (s *TaskService) PutAttachment(ctx context.Context, owner types.User, id uuid.UUID, filename, contentType string, data []byte) (types.Task, error) {
	if s.objects == nil {
		return types.Task{}, ErrAttachmentsDisabled
	}
	if len(data) == 0 {
		return types.Task{}, apperr.Validation("attachment is empty")
	}
	if len(data) > MaxAttachmentBytes {
		return types.Task{}, apperr.Validation("attachment too large")
	}

	task, err := s.repo.GetForUser(ctx, id, owner.ID)
	if err != nil {
		return types.Task{}, taskRepoError(err)
	}

	name := sanitizeFilename(filename)
	if strings.TrimSpace(contentType) == "" {
		contentType = http.DetectContentType(data)
	}
	hash := sha256.Sum256(data)

	attachment := &types.Attachment{
		ObjectKey:   attachmentKey(owner.ID, task.ID, name),
		Filename:    name,
		ContentType: contentType,
		Size:        int64(len(data)),
		SHA256:      hex.EncodeToString(hash[:]),
	}

	if err := s.objects.Put(ctx, attachment.ObjectKey, bytes.NewReader(data), attachment.Size, contentType); err != nil {
		return types.Task{}, apperr.Unavailable(fmt.Errorf("upload attachment: %w", err))
	}

	previous := task.Attachment
	task.Attachment = attachment
	updated, err := s.repo.Update(ctx, task)
	if err != nil {
		s.removeObject(ctx, attachment.ObjectKey)
		return types.Task{}, taskRepoError(err)
	}

	if previous != nil && previous.ObjectKey != attachment.ObjectKey {
		s.removeObject(ctx, previous.ObjectKey)
	}
	s.publish(ctx, types.TaskEventUpdated, updated)
	return updated, nil
}

// OpenAttachment returns the attachment metadata and a reader for its contents.
// The caller closes the reader.
func (s *TaskService) OpenAttachment(ctx context.Context, owner types.User, id uuid.UUID) (types.Attachment, io.ReadCloser, error) {
	if s.objects == nil {
		return types.Attachment{}, nil, ErrAttachmentsDisabled
	}

	task, err := s.repo.GetForUser(ctx, id, owner.ID)
	if err != nil {
		return types.Attachment{}, nil, taskRepoError(err)
	}
	if task.Attachment == nil {
		return types.Attachment{}, nil, apperr.NotFound("Attachment")
	}

	reader, err := s.objects.Get(ctx, task.Attachment.ObjectKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return types.Attachment{}, nil, apperr.NotFound("Attachment").WithCause(err)
		}
		return types.Attachment{}, nil, apperr.Unavailable(fmt.Errorf("open attachment: %w", err))
	}
	return *task.Attachment, reader, nil
}

// DeleteAttachment detaches and removes the task's attachment.
func (s *TaskService) DeleteAttachment(ctx context.Context, owner types.User, id uuid.UUID) (types.Task, error) {
	if s.objects == nil {
		return types.Task{}, ErrAttachmentsDisabled
	}

	task, err := s.repo.GetForUser(ctx, id, owner.ID)
	if err != nil {
		return types.Task{}, taskRepoError(err)
	}
	if task.Attachment == nil {
		return types.Task{}, apperr.NotFound("Attachment")
	}

	key := task.Attachment.ObjectKey
	task.Attachment = nil
	updated, err := s.repo.Update(ctx, task)
	if err != nil {
		return types.Task{}, taskRepoError(err)
	}

	s.removeObject(ctx, key)
	s.publish(ctx, types.TaskEventUpdated, updated)
	return updated, nil
}

func (s *TaskService) removeObject(ctx context.Context, key string) {
	if s.objects == nil || key == "" {
		return
	}
	if err := s.objects.Delete(ctx, key); err != nil {
		s.logger.Warn("delete attachment object failed", slog.String("key", key), slog.Any("error", err))
	}
}

// attachmentKey is unique per upload so a replacement never overwrites the
// object the stored task still points at.
func attachmentKey(userID, taskID uuid.UUID, filename string) string {
	return path.Join("tasks", userID.String(), taskID.String(), uuid.NewString(), filename)
}

func sanitizeFilename(filename string) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "attachment"
	}
	return name
}
