package identifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_DigitWidth(t *testing.T) {
	tests := []struct {
		total    int
		expected int
	}{
		{1, 1},
		{9, 1},
		{10, 2},
		{99, 2},
		{100, 3},
		{1000, 4},
	}

	for _, tt := range tests {
		id := New("suite", 1, tt.total)
		assert.Equal(t, tt.expected, id.NoDigits)
	}
}

func TestID_String(t *testing.T) {
	id := New("mysuite", 3, 100).WithURI("tests/foo.py:TestBar")
	assert.Equal(t, "mysuite-003-tests/foo.py:TestBar", id.String())
}

func TestID_String_NoSuite(t *testing.T) {
	id := New("", 3, 100).WithURI("tests/foo.py")
	assert.Equal(t, "003-tests/foo.py", id.String())
}

func TestID_FilesystemID(t *testing.T) {
	id := New("mysuite", 3, 100).WithURI("tests/foo.py:TestBar")
	fsID := id.FilesystemID()

	assert.NotContains(t, fsID, "/")
	assert.NotContains(t, fsID, ":")
	assert.Equal(t, "mysuite-003-tests_foo.py_TestBar", fsID)
}

func TestID_FilesystemID_Uniqueness(t *testing.T) {
	a := New("suite", 1, 10).WithURI("a")
	b := New("suite", 2, 10).WithURI("b")
	assert.NotEqual(t, a.FilesystemID(), b.FilesystemID())
}
