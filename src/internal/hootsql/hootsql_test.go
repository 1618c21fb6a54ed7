package hootsql

import (
	"testing"

	"github.com/hootenanny/jobtrack/src/internal/require"
)

func TestParseURL(t *testing.T) {
	u, err := ParseURL("postgres://hoot@db.internal:6543/hoot?sslmode=disable")
	require.NoError(t, err)
	require.Equal(t, &URL{
		Protocol: "postgres",
		User:     "hoot",
		Host:     "db.internal",
		Port:     6543,
		Database: "hoot",
		Params:   map[string]string{"sslmode": "disable"},
	}, u)

	u, err = ParseURL("postgres://hoot@localhost/hoot")
	require.NoError(t, err)
	require.Equal(t, uint16(5432), u.Port)
}

func TestOpenURLRejectsOtherProtocols(t *testing.T) {
	_, err := OpenURL(URL{Protocol: "mysql"}, "")
	require.YesError(t, err)
}

func TestPostgresDSN(t *testing.T) {
	dsn := postgresDSN(URL{User: "u", Host: "h", Port: 5432, Database: "d"}, "p")
	require.Equal(t, "dbname=d host=h password=p port=5432 user=u", dsn)
}

func TestTagsScan(t *testing.T) {
	var tags Tags
	require.NoError(t, tags.Scan([]byte(`{"parentId":"a,b","count":3}`)))
	require.Equal(t, Tags{"parentId": "a,b", "count": "3"}, tags)

	require.NoError(t, tags.Scan(nil))
	require.Len(t, tags, 0)

	require.YesError(t, tags.Scan(42))
}

func TestTagsValue(t *testing.T) {
	v, err := Tags(nil).Value()
	require.NoError(t, err)
	require.Equal(t, []byte(`{}`), v)

	v, err = Tags{"lastAccessed": "2024-01-02T03:04:05.000Z"}.Value()
	require.NoError(t, err)
	require.Equal(t, []byte(`{"lastAccessed":"2024-01-02T03:04:05.000Z"}`), v)
}

func TestPlaceholders(t *testing.T) {
	require.Equal(t, "$2, $3, $4", Placeholders(2, 3))
	require.Equal(t, "", Placeholders(1, 0))
}
