package feedsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/commonroom/commonroom_backend/models"
)

// HTTPStore implements Store over the backend's REST API. Requests carry
// the caller's bearer token and honor context cancellation, so a page
// request superseded through the Pager's slot is aborted at the transport
// and its response can never arrive.
type HTTPStore struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPStore(baseURL, token string) *HTTPStore {
	return &HTTPStore{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// apiEnvelope mirrors models.Response with the payload left raw so each
// call can decode its own type.
type apiEnvelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (h *HTTPStore) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(raw)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.token)

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %s", ErrUnauthorized, envelope.Message)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s %s: %s (status %d)", method, path, envelope.Message, resp.StatusCode)
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
	}
	return nil
}

func (h *HTTPStore) ListPosts(ctx context.Context, criteria models.FeedCriteria, page, pageSize int) ([]models.Post, int64, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))
	if criteria.Search != "" {
		q.Set("search", criteria.Search)
	}
	if criteria.ChannelID != primitive.NilObjectID {
		q.Set("channel", criteria.ChannelID.Hex())
	}

	var feed models.FeedPage
	if err := h.do(ctx, http.MethodGet, "/api/posts?"+q.Encode(), nil, &feed); err != nil {
		return nil, 0, err
	}
	return feed.Posts, feed.TotalCount, nil
}

func (h *HTTPStore) CreatePost(ctx context.Context, req models.PostRequest) (*models.Post, error) {
	var post models.Post
	if err := h.do(ctx, http.MethodPost, "/api/posts", req, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (h *HTTPStore) DeletePost(ctx context.Context, id primitive.ObjectID) error {
	return h.do(ctx, http.MethodDelete, "/api/posts/"+id.Hex(), nil, nil)
}

func (h *HTTPStore) ToggleLike(ctx context.Context, postID primitive.ObjectID) (*models.ToggleLikeResponse, error) {
	var result models.ToggleLikeResponse
	if err := h.do(ctx, http.MethodPost, "/api/posts/"+postID.Hex()+"/like", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (h *HTTPStore) ListComments(ctx context.Context, postID primitive.ObjectID) ([]models.Comment, error) {
	var comments []models.Comment
	if err := h.do(ctx, http.MethodGet, "/api/posts/"+postID.Hex()+"/comments", nil, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

func (h *HTTPStore) CreateComment(ctx context.Context, postID primitive.ObjectID, content string) (*models.Comment, error) {
	var comment models.Comment
	req := models.CommentRequest{Content: content}
	if err := h.do(ctx, http.MethodPost, "/api/posts/"+postID.Hex()+"/comments", req, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

func (h *HTTPStore) CreateReply(ctx context.Context, parentID primitive.ObjectID, content string) (*models.Comment, error) {
	var reply models.Comment
	req := models.CommentRequest{Content: content}
	if err := h.do(ctx, http.MethodPost, "/api/comments/"+parentID.Hex()+"/replies", req, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (h *HTTPStore) DeleteComment(ctx context.Context, id primitive.ObjectID) error {
	return h.do(ctx, http.MethodDelete, "/api/comments/"+id.Hex(), nil, nil)
}

func (h *HTTPStore) DeleteReply(ctx context.Context, id primitive.ObjectID) error {
	return h.do(ctx, http.MethodDelete, "/api/replies/"+id.Hex(), nil, nil)
}
