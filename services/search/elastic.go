package searchsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/pkg/errors"

	"github.com/eminingcampus/campus/core"
	"github.com/eminingcampus/campus/core/catalog"
)

const maxHits = 100

var courseMapping = `{
  "mappings": {
    "properties": {
      "title":           {"type": "text"},
      "slug":            {"type": "keyword"},
      "description":     {"type": "text"},
      "instructor_name": {"type": "text"},
      "tags":            {"type": "text"},
      "level":           {"type": "keyword"},
      "price":           {"type": "scaled_float", "scaling_factor": 100}
    }
  }
}`

type courseDoc struct {
	ID             int64    `json:"id"`
	Title          string   `json:"title"`
	Slug           string   `json:"slug"`
	Description    string   `json:"description"`
	InstructorName string   `json:"instructor_name"`
	Tags           []string `json:"tags"`
	Level          string   `json:"level"`
	Price          float64  `json:"price"`
}

// ElasticIndex is the elasticsearch course index.
type ElasticIndex struct {
	es    *elasticsearch.Client
	index string
}

var _ catalog.SearchIndex = (*ElasticIndex)(nil)

func NewElasticClient(conf core.SearchConfig) (*elasticsearch.Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: conf.ElasticURLs})
	return es, errors.Wrap(err, "creating elasticsearch client")
}

func NewElasticIndex(es *elasticsearch.Client, conf core.SearchConfig) *ElasticIndex {
	return &ElasticIndex{es: es, index: conf.CourseIndex}
}

// EnsureIndex creates the course index if it does not exist.
func (idx *ElasticIndex) EnsureIndex(ctx context.Context) error {
	res, err := idx.es.Indices.Exists([]string{idx.index}, idx.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return errors.Wrap(err, "checking index")
	}
	_ = res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	res, err = idx.es.Indices.Create(
		idx.index,
		idx.es.Indices.Create.WithContext(ctx),
		idx.es.Indices.Create.WithBody(strings.NewReader(courseMapping)),
	)
	if err != nil {
		return errors.Wrap(err, "creating index")
	}
	return responseError(res, "creating index")
}

func (idx *ElasticIndex) IndexCourse(ctx context.Context, course catalog.Course) error {
	price, _ := course.Price.Float64()
	doc, err := json.Marshal(courseDoc{
		ID:             course.ID,
		Title:          course.Title,
		Slug:           course.Slug,
		Description:    course.Description,
		InstructorName: course.InstructorName,
		Tags:           course.Tags,
		Level:          course.Level,
		Price:          price,
	})
	if err != nil {
		return errors.Wrap(err, "encoding course")
	}

	res, err := idx.es.Index(
		idx.index,
		bytes.NewReader(doc),
		idx.es.Index.WithContext(ctx),
		idx.es.Index.WithDocumentID(strconv.FormatInt(course.ID, 10)),
		idx.es.Index.WithRefresh("true"),
	)
	if err != nil {
		return errors.Wrap(err, "indexing course")
	}
	return responseError(res, "indexing course")
}

// SearchCourses returns the IDs of the best matching courses.
func (idx *ElasticIndex) SearchCourses(ctx context.Context, query string) ([]int64, error) {
	body, err := json.Marshal(map[string]interface{}{
		"size":    maxHits,
		"_source": false,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     query,
				"fields":    []string{"title^3", "instructor_name^2", "description", "tags"},
				"fuzziness": "AUTO",
			},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "encoding query")
	}

	res, err := idx.es.Search(
		idx.es.Search.WithContext(ctx),
		idx.es.Search.WithIndex(idx.index),
		idx.es.Search.WithBody(bytes.NewReader(body)),
		idx.es.Search.WithTrackTotalHits(false),
	)
	if err != nil {
		return nil, errors.Wrap(err, "searching courses")
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, errors.Errorf("searching courses: %s", res.String())
	}

	var result struct {
		Hits struct {
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err = json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "decoding search response")
	}

	ids := make([]int64, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func responseError(res *esapi.Response, action string) error {
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return errors.Errorf("%s: %s %s", action, res.Status(), msg)
	}
	return nil
}
