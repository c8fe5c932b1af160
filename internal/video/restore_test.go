package video

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/lingoreel/lingoreel/internal/srt"
	"github.com/lingoreel/lingoreel/internal/stream"
	"github.com/pashagolub/pgxmock/v4"
)

type fakeObjects struct {
	data    map[string][]byte
	getErr  error
	gotKey  string
	gotSize int64
}

func (f *fakeObjects) GetObject(_ context.Context, key string, maxBytes int64) ([]byte, error) {
	f.gotKey, f.gotSize = key, maxBytes
	if f.getErr != nil {
		return nil, f.getErr
	}
	b, ok := f.data[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return b, nil
}

const archivedKey = "subtitles/" + testVideoID + "/a1.srt"

func expectArchivedSource(mock pgxmock.PgxPoolIface) {
	mock.ExpectQuery(`SELECT object_key, filename FROM subtitle_sources\s+WHERE video_id = \$1 AND deleted_at IS NULL`).
		WithArgs(testVideoID).
		WillReturnRows(pgxmock.NewRows([]string{"object_key", "filename"}).AddRow(archivedKey, "lesson.srt"))
}

func TestRestoreSubtitles(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()
	objects := &fakeObjects{data: map[string][]byte{archivedKey: []byte(bilingualSRT)}}

	expectArchivedSource(mock)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM subtitles WHERE video_id = \$1`).
		WithArgs(testVideoID).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))
	mock.ExpectExec(`INSERT INTO subtitles`).
		WithArgs(testVideoID, 1, 1.0, 2.5, "Hello.", pgxmock.AnyArg(),
			testVideoID, 2, 3.0, 4.0, "Goodbye.", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	res, err := RestoreSubtitles(context.Background(), mock, objects, testVideoID, 0, false)
	if err != nil {
		t.Fatalf("RestoreSubtitles: %v", err)
	}
	want := &RestoreResult{ObjectKey: archivedKey, Filename: "lesson.srt", Encoding: srt.UTF8, Cues: 2, Warnings: []string{}}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if objects.gotSize != DefaultMaxSRTBytes {
		t.Errorf("expected default size cap, got %d", objects.gotSize)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRestoreSubtitles_DryRunLeavesCues(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()
	objects := &fakeObjects{data: map[string][]byte{archivedKey: []byte(bilingualSRT)}}

	expectArchivedSource(mock)

	res, err := RestoreSubtitles(context.Background(), mock, objects, testVideoID, 1024, true)
	if err != nil {
		t.Fatalf("RestoreSubtitles: %v", err)
	}
	if res.Cues != 2 || objects.gotKey != archivedKey || objects.gotSize != 1024 {
		t.Errorf("unexpected dry run: %+v key=%s size=%d", res, objects.gotKey, objects.gotSize)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expected no writes: %v", err)
	}
}

func TestRestoreSubtitles_Errors(t *testing.T) {
	tests := []struct {
		name    string
		objects *fakeObjects
		setup   func(mock pgxmock.PgxPoolIface)
		want    string
	}{
		{
			name:    "no archive",
			objects: &fakeObjects{},
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM subtitle_sources`).
					WithArgs(testVideoID).
					WillReturnRows(pgxmock.NewRows([]string{"object_key", "filename"}))
			},
			want: ErrNoArchivedSource.Error(),
		},
		{
			name:    "object missing",
			objects: &fakeObjects{getErr: errors.New("get object: NoSuchKey")},
			setup:   expectArchivedSource,
			want:    "NoSuchKey",
		},
		{
			name:    "archive no longer parses cleanly",
			objects: &fakeObjects{data: map[string][]byte{archivedKey: []byte("1\n00:00:05,000 --> 00:00:02,000\nBackwards.\n")}},
			setup:   expectArchivedSource,
			want:    "lesson.srt",
		},
		{
			name:    "insert fails",
			objects: &fakeObjects{data: map[string][]byte{archivedKey: []byte(bilingualSRT)}},
			setup: func(mock pgxmock.PgxPoolIface) {
				expectArchivedSource(mock)
				mock.ExpectBegin()
				mock.ExpectExec(`DELETE FROM subtitles`).WithArgs(testVideoID).WillReturnResult(pgxmock.NewResult("DELETE", 2))
				mock.ExpectExec(`INSERT INTO subtitles`).WillReturnError(errors.New("db down"))
				mock.ExpectRollback()
			},
			want: "db down",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			if err != nil {
				t.Fatal(err)
			}
			defer mock.Close()
			tc.setup(mock)

			_, err = RestoreSubtitles(context.Background(), mock, tc.objects, testVideoID, 0, false)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("expected error containing %q, got %v", tc.want, err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unmet expectations: %v", err)
			}
		})
	}
}

type fakeAssets struct {
	videos []stream.Video
	err    error
}

func (f fakeAssets) ListVideos(context.Context) ([]stream.Video, error) {
	return f.videos, f.err
}

func TestOrphanAssets(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()
	assets := fakeAssets{videos: []stream.Video{{UID: "aaa"}, {UID: "bbb"}, {UID: "ccc"}}}

	mock.ExpectQuery(`SELECT stream_uid FROM videos WHERE stream_uid = ANY\(\$1\)`).
		WithArgs([]string{"aaa", "bbb", "ccc"}).
		WillReturnRows(pgxmock.NewRows([]string{"stream_uid"}).AddRow("bbb"))

	orphans, err := OrphanAssets(context.Background(), mock, assets)
	if err != nil {
		t.Fatalf("OrphanAssets: %v", err)
	}
	var got []string
	for _, o := range orphans {
		got = append(got, o.UID)
	}
	if diff := cmp.Diff([]string{"aaa", "ccc"}, got); diff != "" {
		t.Errorf("orphans mismatch (-want +got):\n%s", diff)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestOrphanAssets_EmptyAccountSkipsQuery(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	orphans, err := OrphanAssets(context.Background(), mock, fakeAssets{})
	if err != nil || len(orphans) != 0 {
		t.Errorf("expected nothing, got %v, %v", orphans, err)
	}
	if _, err := OrphanAssets(context.Background(), mock, fakeAssets{err: errors.New("forbidden")}); err == nil {
		t.Error("expected list error to surface")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
