package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/suite"

	"github.com/thebtf/scribe/pkg/models"
)

type FileSourceSuite struct {
	suite.Suite
	tempDir string
}

func TestFileSourceSuite(t *testing.T) {
	suite.Run(t, new(FileSourceSuite))
}

func (s *FileSourceSuite) SetupTest() {
	s.tempDir = s.T().TempDir()
}

func (s *FileSourceSuite) writeExport(name string, msgs []models.RawMessage) string {
	data, err := json.Marshal(msgs)
	s.Require().NoError(err)
	path := filepath.Join(s.tempDir, name)
	s.Require().NoError(os.WriteFile(path, data, 0644))
	return path
}

func (s *FileSourceSuite) TestSingleFileFiltersAndSorts() {
	monday := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	period := models.WorkWeek(monday)

	path := s.writeExport("export.json", []models.RawMessage{
		{ID: "late", Channel: "eng", Text: "b", Timestamp: monday.Add(30 * time.Hour)},
		{ID: "early", Channel: "eng", Text: "a", Timestamp: monday.Add(9 * time.Hour)},
		{ID: "outside", Channel: "eng", Text: "c", Timestamp: monday.AddDate(0, 0, -3)},
	})

	msgs, err := NewFile(path).Fetch(context.Background(), period)
	s.Require().NoError(err)
	s.Require().Len(msgs, 2, "messages outside the period are dropped")
	s.Equal("early", msgs[0].ID)
	s.Equal("late", msgs[1].ID)
}

func (s *FileSourceSuite) TestDirectoryMergesFiles() {
	monday := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	period := models.WorkWeek(monday)

	s.writeExport("b.json", []models.RawMessage{
		{ID: "m2", Channel: "eng", Timestamp: monday.Add(10 * time.Hour)},
	})
	s.writeExport("a.json", []models.RawMessage{
		{ID: "m1", Channel: "eng", Timestamp: monday.Add(9 * time.Hour)},
	})
	s.Require().NoError(os.WriteFile(filepath.Join(s.tempDir, "notes.txt"), []byte("ignored"), 0644))

	msgs, err := NewFile(s.tempDir).Fetch(context.Background(), period)
	s.Require().NoError(err)
	s.Require().Len(msgs, 2)
	s.Equal("m1", msgs[0].ID)
	s.Equal("m2", msgs[1].ID)
}

func (s *FileSourceSuite) TestMissingPath() {
	_, err := NewFile(filepath.Join(s.tempDir, "gone.json")).Fetch(context.Background(), models.Day(time.Now()))
	s.Error(err)
}

func (s *FileSourceSuite) TestMalformedExport() {
	path := filepath.Join(s.tempDir, "bad.json")
	s.Require().NoError(os.WriteFile(path, []byte("{not an array"), 0644))

	_, err := NewFile(path).Fetch(context.Background(), models.Day(time.Now()))
	s.Require().Error(err)
	s.Contains(err.Error(), "parse")
}
