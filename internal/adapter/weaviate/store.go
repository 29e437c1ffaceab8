package weaviate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"semdex/internal/index"
)

const (
	className = "ChunkVector"
	pageSize  = 500
)

// Store mirrors index records into Weaviate. One class holds every
// namespace; the namespace lives in a property so a restart can rebuild all
// partitions with a single cursor walk.
type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

// objectID derives a stable Weaviate object id from the logical record key,
// so a Put for the same (namespace, id) always lands on the same object.
func objectID(namespace, id string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(namespace+"/"+id)).String())
}

// EnsureSchema creates the class if missing and backfills any missing
// properties on an existing class.
func (s *Store) EnsureSchema(ctx context.Context) error {
	exists, err := s.client.Schema().ClassExistenceChecker().WithClassName(className).Do(ctx)
	if err != nil {
		return err
	}

	properties := []*models.Property{
		{Name: "namespace", DataType: []string{"string"}},
		{Name: "recordId", DataType: []string{"string"}},
		{Name: "documentId", DataType: []string{"string"}},
		{Name: "chunkIndex", DataType: []string{"int"}},
		{Name: "sourceType", DataType: []string{"string"}},
		{Name: "extra", DataType: []string{"text"}},
	}

	if !exists {
		class := &models.Class{
			Class:       className,
			Description: "A mirrored chunk embedding",
			Vectorizer:  "none",
			Properties:  properties,
		}
		return s.client.Schema().ClassCreator().WithClass(class).Do(ctx)
	}

	class, err := s.client.Schema().ClassGetter().WithClassName(className).Do(ctx)
	if err != nil {
		return err
	}
	existing := make(map[string]bool)
	for _, p := range class.Properties {
		existing[p.Name] = true
	}
	for _, p := range properties {
		if !existing[p.Name] {
			if err := s.client.Schema().PropertyCreator().WithClassName(className).WithProperty(p).Do(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) Put(ctx context.Context, namespace, id string, vector []float32, meta index.Metadata) error {
	props := map[string]interface{}{
		"namespace":  namespace,
		"recordId":   id,
		"documentId": meta.DocumentID,
		"chunkIndex": meta.ChunkIndex,
		"sourceType": meta.SourceType,
	}
	if len(meta.Extra) > 0 {
		encoded, err := json.Marshal(meta.Extra)
		if err != nil {
			return fmt.Errorf("encode extra metadata: %w", err)
		}
		props["extra"] = string(encoded)
	}

	obj := &models.Object{
		Class:      className,
		ID:         objectID(namespace, id),
		Properties: props,
		Vector:     models.C11yVector(vector),
	}

	// Batch import with an explicit id acts as insert-or-replace.
	res, err := s.client.Batch().ObjectsBatcher().WithObjects(obj).Do(ctx)
	if err != nil {
		return err
	}
	for _, r := range res {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return fmt.Errorf("batch put: %s", r.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, namespace, id string) error {
	err := s.client.Data().Deleter().
		WithClassName(className).
		WithID(string(objectID(namespace, id))).
		Do(ctx)
	if err != nil && strings.Contains(err.Error(), "404") {
		return nil
	}
	return err
}

// List walks the whole class with cursor pagination and returns every
// mirrored record. Used once, at startup, to rebuild the in-memory index.
func (s *Store) List(ctx context.Context) ([]index.StoredRecord, error) {
	fields := []graphql.Field{
		{Name: "namespace"},
		{Name: "recordId"},
		{Name: "documentId"},
		{Name: "chunkIndex"},
		{Name: "sourceType"},
		{Name: "extra"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "vector"}}},
	}

	var records []index.StoredRecord
	cursor := ""
	for {
		query := s.client.GraphQL().Get().
			WithClassName(className).
			WithLimit(pageSize).
			WithFields(fields...)
		if cursor != "" {
			query = query.WithAfter(cursor)
		}

		res, err := query.Do(ctx)
		if err != nil {
			return nil, err
		}
		if len(res.Errors) > 0 {
			return nil, fmt.Errorf("graphql error: %s", res.Errors[0].Message)
		}

		page := decodePage(res.Data)
		if len(page) == 0 {
			return records, nil
		}
		// The cursor advances on every object, decodable or not, so a page
		// of malformed records cannot be fetched again forever.
		prev := cursor
		for _, obj := range page {
			rec, objID, ok := decodeRecord(obj)
			if objID != "" {
				cursor = objID
			}
			if ok {
				records = append(records, rec)
			}
		}
		if len(page) < pageSize {
			return records, nil
		}
		if cursor == prev {
			return nil, fmt.Errorf("page of %d objects carried no cursor id", len(page))
		}
	}
}

func decodePage(data map[string]models.JSONObject) []map[string]interface{} {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := get[className].([]interface{})
	if !ok {
		return nil
	}
	page := make([]map[string]interface{}, 0, len(raw))
	for _, item := range raw {
		if obj, ok := item.(map[string]interface{}); ok {
			page = append(page, obj)
		}
	}
	return page
}

func decodeRecord(props map[string]interface{}) (index.StoredRecord, string, bool) {
	rec := index.StoredRecord{}
	if ns, ok := props["namespace"].(string); ok {
		rec.Namespace = ns
	}
	if id, ok := props["recordId"].(string); ok {
		rec.ID = id
	}
	if docID, ok := props["documentId"].(string); ok {
		rec.Meta.DocumentID = docID
	}
	if idx, ok := props["chunkIndex"].(float64); ok {
		rec.Meta.ChunkIndex = int(idx)
	}
	if st, ok := props["sourceType"].(string); ok {
		rec.Meta.SourceType = st
	}
	if extra, ok := props["extra"].(string); ok && extra != "" {
		_ = json.Unmarshal([]byte(extra), &rec.Meta.Extra)
	}

	additional, ok := props["_additional"].(map[string]interface{})
	if !ok {
		return rec, "", false
	}
	objID, _ := additional["id"].(string)
	rawVec, ok := additional["vector"].([]interface{})
	if !ok {
		return rec, objID, false
	}
	rec.Vector = make([]float32, len(rawVec))
	for i, v := range rawVec {
		if f, ok := v.(float64); ok {
			rec.Vector[i] = float32(f)
		}
	}
	return rec, objID, rec.Namespace != "" && rec.ID != "" && len(rec.Vector) > 0
}
