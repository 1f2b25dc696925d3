package artifact

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/straylight-ai/crucible/types"
)

// ExampleStream is a lazy, finite, non-restartable cursor over a
// dataset's examples. The backing file stays open until Close; callers
// must drain or close it. Re-running a recipe re-opens the dataset.
type ExampleStream struct {
	f       *os.File
	dec     *json.Decoder
	inArray bool
	done    bool
}

// StreamDataset opens a dataset file and positions the cursor at the
// first example without loading the whole file.
func (s *Store) StreamDataset(id string) (*ExampleStream, error) {
	path, err := s.path(KindDataset, id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &types.NotFoundError{Kind: string(KindDataset), ID: id}
		}
		return nil, types.WrapError(types.ARTIFACT_IO_ERROR, "opening dataset "+id, err)
	}
	st := &ExampleStream{f: f, dec: json.NewDecoder(f)}
	if err := st.seekExamples(); err != nil {
		f.Close()
		return nil, types.WrapError(types.ARTIFACT_IO_ERROR, "dataset "+id+" has no examples array", err)
	}
	return st, nil
}

// seekExamples walks the top-level object until the "examples" array
// opens, skipping every other value.
func (st *ExampleStream) seekExamples() error {
	tok, err := st.dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}
	for st.dec.More() {
		keyTok, err := st.dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		if key == "examples" {
			tok, err := st.dec.Token()
			if err != nil {
				return err
			}
			if d, ok := tok.(json.Delim); !ok || d != '[' {
				return fmt.Errorf("examples is not an array")
			}
			st.inArray = true
			return nil
		}
		var skip json.RawMessage
		if err := st.dec.Decode(&skip); err != nil {
			return err
		}
	}
	return fmt.Errorf("examples key not found")
}

// Next returns the next example. The second return is false once the
// stream is exhausted.
func (st *ExampleStream) Next() (types.DatasetExample, bool, error) {
	if st.done || !st.inArray {
		return types.DatasetExample{}, false, nil
	}
	if !st.dec.More() {
		st.done = true
		return types.DatasetExample{}, false, nil
	}
	var ex types.DatasetExample
	if err := st.dec.Decode(&ex); err != nil {
		st.done = true
		return types.DatasetExample{}, false, types.WrapError(types.ARTIFACT_IO_ERROR, "decoding dataset example", err)
	}
	return ex, true, nil
}

// Close releases the backing file.
func (st *ExampleStream) Close() error {
	return st.f.Close()
}

// CountDatasetExamples counts a dataset's examples by streaming it.
func (s *Store) CountDatasetExamples(id string) (int, error) {
	st, err := s.StreamDataset(id)
	if err != nil {
		return 0, err
	}
	defer st.Close()
	n := 0
	for {
		_, ok, err := st.Next()
		if err != nil {
			return 0, err
		}
		if !ok {
			return n, nil
		}
		n++
	}
}
