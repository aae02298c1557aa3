package git

import (
	"fmt"
	"strings"
	"testing"

	"github.com/aymanbagabas/go-udiff"
	"github.com/chmouel/treesync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleDiff = strings.Join([]string{
	"diff --git a/main.go b/main.go",
	"index 83db48f..bf269f4 100644",
	"--- a/main.go",
	"+++ b/main.go",
	"@@ -1,4 +1,5 @@ package main",
	` import "fmt"`,
	"-func main() {",
	"+func main() {",
	`+	fmt.Println("hi")`,
	" }",
	" ",
	"@@ -10 +11,2 @@ func helper()",
	"-old",
	"+new",
	"+newer",
	"diff --git a/added.txt b/added.txt",
	"new file mode 100644",
	"index 0000000..e69de29",
	"--- /dev/null",
	"+++ b/added.txt",
	"@@ -0,0 +1,2 @@",
	"+one",
	"+two",
	`\ No newline at end of file`,
	"diff --git a/gone.txt b/gone.txt",
	"deleted file mode 100644",
	"index e69de29..0000000",
	"--- a/gone.txt",
	"+++ /dev/null",
	"@@ -1 +0,0 @@",
	"--- leading dashes",
	"diff --git a/old name.txt b/new name.txt",
	"similarity index 90%",
	"rename from old name.txt",
	"rename to new name.txt",
	"diff --git a/logo.png b/logo.png",
	"index 1111111..2222222 100644",
	"Binary files a/logo.png and b/logo.png differ",
	"diff --git a/link b/link",
	"old mode 100644",
	"new mode 120000",
	"",
}, "\n")

func TestParseHunkHeader(t *testing.T) {
	tests := []struct {
		line string
		want models.Chunk
	}{
		{
			line: "@@ -12,5 +12,7 @@ func foo()",
			want: models.Chunk{OldStart: 12, OldCount: 5, NewStart: 12, NewCount: 7, Context: "func foo()"},
		},
		{
			line: "@@ -3 +4 @@",
			want: models.Chunk{OldStart: 3, OldCount: 1, NewStart: 4, NewCount: 1},
		},
		{
			line: "@@ -0,0 +1,3 @@",
			want: models.Chunk{OldStart: 0, OldCount: 0, NewStart: 1, NewCount: 3},
		},
		{
			line: "@@ -7,2 +7 @@  indented context",
			want: models.Chunk{OldStart: 7, OldCount: 2, NewStart: 7, NewCount: 1, Context: " indented context"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseHunkHeader(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseHunkHeaderMalformed(t *testing.T) {
	for _, line := range []string{
		"@@ garbage @@",
		"@@ -a,b +c,d @@",
		"@@@ -1,2 -1,2 +1,3 @@@",
		"@@ -1,2 +1,2",
		"@@ -99999999999999999999 +1 @@",
	} {
		_, err := ParseHunkHeader(line)
		assert.ErrorIs(t, err, ErrMalformedHunkHeader, line)
	}
}

func TestChunkHeaderRoundTrip(t *testing.T) {
	for _, oldStart := range []int{0, 1, 12} {
		for _, oldCount := range []int{0, 1, 5} {
			for _, newCount := range []int{0, 1, 7} {
				for _, context := range []string{"", "func foo()", "  spaced"} {
					c := models.Chunk{OldStart: oldStart, OldCount: oldCount, NewStart: oldStart + 2, NewCount: newCount, Context: context}
					got, err := ParseHunkHeader(c.Header())
					require.NoError(t, err, c.Header())
					assert.Equal(t, c, got, c.Header())
				}
			}
		}
	}
}

func TestParseDiffSample(t *testing.T) {
	files := ParseDiff(sampleDiff)
	require.Len(t, files, 6)

	t.Run("modified file", func(t *testing.T) {
		f := files[0]
		assert.Equal(t, "main.go", f.Path)
		assert.Empty(t, f.OldPath)
		assert.Equal(t, models.ChangeModified, f.ChangeType)
		require.Len(t, f.Chunks, 2)

		c := f.Chunks[0]
		assert.Equal(t, "package main", c.Context)
		require.Len(t, c.Lines, 6)
		assert.Equal(t, models.Line{Kind: models.LineContext, OldLine: 1, NewLine: 1, Content: `import "fmt"`}, c.Lines[0])
		assert.Equal(t, models.Line{Kind: models.LineDeletion, OldLine: 2, Content: "func main() {"}, c.Lines[1])
		assert.Equal(t, models.Line{Kind: models.LineAddition, NewLine: 2, Content: "func main() {"}, c.Lines[2])
		assert.Equal(t, models.Line{Kind: models.LineAddition, NewLine: 3, Content: `	fmt.Println("hi")`}, c.Lines[3])
		assert.Equal(t, models.Line{Kind: models.LineContext, OldLine: 3, NewLine: 4, Content: "}"}, c.Lines[4])
		assert.Equal(t, models.Line{Kind: models.LineContext, OldLine: 4, NewLine: 5, Content: ""}, c.Lines[5])

		c = f.Chunks[1]
		assert.Equal(t, 1, c.OldCount)
		assert.Equal(t, 2, c.NewCount)
		assert.Equal(t, "func helper()", c.Context)
		require.Len(t, c.Lines, 3)
		assert.Equal(t, 10, c.Lines[0].OldLine)
		assert.Equal(t, 11, c.Lines[1].NewLine)
		assert.Equal(t, 12, c.Lines[2].NewLine)

		assert.Equal(t, models.DiffStats{Additions: 4, Deletions: 2}, f.Stats())
		require.NotEmpty(t, f.Header)
		assert.Equal(t, models.LineFileHeader, f.Header[0].Kind)
	})

	t.Run("added file with no newline marker", func(t *testing.T) {
		f := files[1]
		assert.Equal(t, "added.txt", f.Path)
		assert.Equal(t, models.ChangeAdded, f.ChangeType)
		assert.Equal(t, "100644", f.NewMode)
		require.Len(t, f.Chunks, 1)
		lines := f.Chunks[0].Lines
		require.Len(t, lines, 3)
		assert.Equal(t, models.LineNoNewline, lines[2].Kind)
		assert.Equal(t, "No newline at end of file", lines[2].Content)
		assert.Zero(t, lines[2].OldLine)
		assert.Zero(t, lines[2].NewLine)
	})

	t.Run("deleted file keeps dash content", func(t *testing.T) {
		f := files[2]
		assert.Equal(t, "gone.txt", f.Path)
		assert.Equal(t, models.ChangeDeleted, f.ChangeType)
		require.Len(t, f.Chunks, 1)
		require.Len(t, f.Chunks[0].Lines, 1)
		assert.Equal(t, models.Line{Kind: models.LineDeletion, OldLine: 1, Content: "-- leading dashes"}, f.Chunks[0].Lines[0])
	})

	t.Run("pure rename", func(t *testing.T) {
		f := files[3]
		assert.Equal(t, "new name.txt", f.Path)
		assert.Equal(t, "old name.txt", f.OldPath)
		assert.Equal(t, models.ChangeRenamed, f.ChangeType)
		assert.Equal(t, 90, f.Similarity)
		assert.Empty(t, f.Chunks)
	})

	t.Run("binary", func(t *testing.T) {
		f := files[4]
		assert.Equal(t, "logo.png", f.Path)
		assert.True(t, f.IsBinary)
		assert.Empty(t, f.Chunks)
	})

	t.Run("type change", func(t *testing.T) {
		f := files[5]
		assert.Equal(t, "link", f.Path)
		assert.Equal(t, models.ChangeTypeChanged, f.ChangeType)
	})

	assertChunkInvariants(t, files)
}

func TestParseDiffDropsMalformedChunkOnly(t *testing.T) {
	raw := strings.Join([]string{
		"diff --git a/f.txt b/f.txt",
		"--- a/f.txt",
		"+++ b/f.txt",
		"@@ -1,2 +1,2 @@",
		" keep",
		"-a",
		"+b",
		"@@ broken header @@",
		" ignored",
		"+ignored",
		"@@ -20 +20 @@",
		"-x",
		"+y",
	}, "\n")

	files := ParseDiff(raw)
	require.Len(t, files, 1)
	require.Len(t, files[0].Chunks, 2)
	assert.Equal(t, 1, files[0].Chunks[0].OldStart)
	assert.Equal(t, 20, files[0].Chunks[1].OldStart)
	for _, c := range files[0].Chunks {
		for _, l := range c.Lines {
			assert.NotEqual(t, "ignored", l.Content)
		}
	}
}

func TestParseDiffDroppedChunkBodyIsNotAFileHeader(t *testing.T) {
	raw := strings.Join([]string{
		"diff --git a/f.txt b/f.txt",
		"--- a/f.txt",
		"+++ b/f.txt",
		"@@ -1 +1 @@",
		"-old",
		"+new",
		"@@ -x,2 +1,2 @@",
		"--- x",
		"+++ y",
		" tail",
		"@@ -9 +9 @@",
		"-p",
		"+q",
	}, "\n")

	files := ParseDiff(raw)
	require.Len(t, files, 1)
	assert.Equal(t, "f.txt", files[0].Path)
	require.Len(t, files[0].Chunks, 2)
	assert.Equal(t, 9, files[0].Chunks[1].OldStart)
}

func TestParseDiffCounterMismatchKeepsChunk(t *testing.T) {
	raw := "--- a/f.txt\n+++ b/f.txt\n@@ -1,5 +1,5 @@\n ctx\n-gone\n+here\n"
	files := ParseDiff(raw)
	require.Len(t, files, 1)
	require.Len(t, files[0].Chunks, 1)
	c := files[0].Chunks[0]
	assert.Equal(t, 5, c.OldCount)
	assert.Len(t, c.Lines, 3)
}

func TestParseDiffMetaLineInsideChunk(t *testing.T) {
	raw := "--- a/f\n+++ b/f\n@@ -1,2 +1,2 @@\n a\n~weird\n b\n"
	files := ParseDiff(raw)
	require.Len(t, files, 1)
	lines := files[0].Chunks[0].Lines
	require.Len(t, lines, 3)
	assert.Equal(t, models.LineMeta, lines[1].Kind)
	assert.Equal(t, "~weird", lines[1].Content)
	assert.Equal(t, 2, lines[2].OldLine)
}

func TestParseDiffUnmergedAndCombined(t *testing.T) {
	raw := strings.Join([]string{
		"* Unmerged path conflict.go",
		"diff --cc both.go",
		"index 1111111,2222222..0000000",
		"@@@ -1,1 -1,1 +1,5 @@@",
		"++<<<<<<< HEAD",
		" +ours",
	}, "\n")

	files := ParseDiff(raw)
	require.Len(t, files, 2)
	assert.Equal(t, "conflict.go", files[0].Path)
	assert.Equal(t, models.ChangeUnmerged, files[0].ChangeType)
	assert.Equal(t, "both.go", files[1].Path)
	assert.Equal(t, models.ChangeUnmerged, files[1].ChangeType)
	assert.Empty(t, files[1].Chunks)
}

func TestParseDiffCopy(t *testing.T) {
	raw := strings.Join([]string{
		"diff --git a/src.go b/dst.go",
		"similarity index 100%",
		"copy from src.go",
		"copy to dst.go",
	}, "\n")
	files := ParseDiff(raw)
	require.Len(t, files, 1)
	assert.Equal(t, models.ChangeCopied, files[0].ChangeType)
	assert.Equal(t, "src.go", files[0].OldPath)
	assert.Equal(t, "dst.go", files[0].Path)
}

func TestParseDiffGitBinaryPatch(t *testing.T) {
	raw := strings.Join([]string{
		"diff --git a/img.bin b/img.bin",
		"index 1111111..2222222 100644",
		"GIT binary patch",
		"literal 4",
		"LcmZQzU|;|M00aO5",
		"",
		"literal 0",
		"HcmV?d00001",
		"",
	}, "\n")
	files := ParseDiff(raw)
	require.Len(t, files, 1)
	assert.True(t, files[0].IsBinary)
	assert.Empty(t, files[0].Chunks)
	for _, h := range files[0].Header {
		assert.NotContains(t, h.Content, "HcmV")
	}
}

func TestParseDiffQuotedPaths(t *testing.T) {
	raw := strings.Join([]string{
		`diff --git "a/tab\there.txt" "b/tab\there.txt"`,
		`--- "a/tab\there.txt"`,
		`+++ "b/tab\there.txt"`,
		"@@ -1 +1 @@",
		"-a",
		"+b",
	}, "\n")
	files := ParseDiff(raw)
	require.Len(t, files, 1)
	assert.Equal(t, "tab\there.txt", files[0].Path)
	assert.Empty(t, files[0].OldPath)
}

func TestParseDiffEmpty(t *testing.T) {
	assert.Empty(t, ParseDiff(""))
	assert.Empty(t, ParseDiff("commit preamble\nAuthor: someone\n"))
}

func TestParseDiffGeneratedUnified(t *testing.T) {
	cases := []struct {
		name     string
		old, new string
	}{
		{"append", "a\nb\nc\n", "a\nb\nc\nd\ne\n"},
		{"prepend", "x\ny\n", "w\nx\ny\n"},
		{"replace middle", "1\n2\n3\n4\n5\n6\n7\n8\n9\n10\n", "1\n2\n3\nfour\n5\n6\n7\n8\nnine\n10\n"},
		{"delete all", "only\nlines\n", ""},
		{"create", "", "fresh\nfile\n"},
		{"no trailing newline", "a\nb", "a\nc"},
		{"far apart", strings.Repeat("same\n", 30) + "x\n" + strings.Repeat("same\n", 30) + "y\n", strings.Repeat("same\n", 30) + "X\n" + strings.Repeat("same\n", 30) + "Y\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := udiff.Unified("a/file.txt", "b/file.txt", tc.old, tc.new)
			files := ParseDiff(raw)
			require.Len(t, files, 1, raw)
			assert.Equal(t, "file.txt", files[0].Path)
			require.NotEmpty(t, files[0].Chunks, raw)
			assertChunkInvariants(t, files)
			assertCountsMatch(t, files)
		})
	}
}

func TestParseDiffConcatenatedPlainDiffs(t *testing.T) {
	raw := udiff.Unified("a/one.txt", "b/one.txt", "1\n2\n", "1\n3\n") +
		udiff.Unified("a/two.txt", "b/two.txt", "x\n", "y\n")
	files := ParseDiff(raw)
	require.Len(t, files, 2)
	assert.Equal(t, "one.txt", files[0].Path)
	assert.Equal(t, "two.txt", files[1].Path)
	assertCountsMatch(t, files)
}

// assertChunkInvariants checks the line-number model of every parsed chunk.
func assertChunkInvariants(t *testing.T, files []models.FileDiff) {
	t.Helper()
	for _, f := range files {
		if f.IsBinary {
			assert.Empty(t, f.Chunks, f.Path)
		}
		for _, c := range f.Chunks {
			assert.Equal(t, c.OldCount, c.OldEnd()-c.OldStart+1, c.Header())
			assert.Equal(t, c.NewCount, c.NewEnd()-c.NewStart+1, c.Header())
			for _, l := range c.Lines {
				switch l.Kind {
				case models.LineAddition:
					assert.Zero(t, l.OldLine, fmt.Sprintf("%+v", l))
					assert.NotZero(t, l.NewLine, fmt.Sprintf("%+v", l))
				case models.LineDeletion:
					assert.Zero(t, l.NewLine, fmt.Sprintf("%+v", l))
					assert.NotZero(t, l.OldLine, fmt.Sprintf("%+v", l))
				case models.LineContext:
					assert.NotZero(t, l.OldLine, fmt.Sprintf("%+v", l))
					assert.NotZero(t, l.NewLine, fmt.Sprintf("%+v", l))
				}
			}
		}
	}
}

// assertCountsMatch checks that the lines of each chunk add up to its header counts.
func assertCountsMatch(t *testing.T, files []models.FileDiff) {
	t.Helper()
	for _, f := range files {
		for _, c := range f.Chunks {
			oldSeen, newSeen := 0, 0
			for _, l := range c.Lines {
				switch l.Kind {
				case models.LineContext:
					oldSeen++
					newSeen++
				case models.LineDeletion:
					oldSeen++
				case models.LineAddition:
					newSeen++
				}
			}
			assert.Equal(t, c.OldCount, oldSeen, c.Header())
			assert.Equal(t, c.NewCount, newSeen, c.Header())
		}
	}
}
