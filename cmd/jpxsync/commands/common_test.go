package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harigane/jpxsync/internal/module/marketdata"
)

func TestAppContextRequireAPI(t *testing.T) {
	t.Run("missing api key surfaces the real cause", func(t *testing.T) {
		appCtx := &AppContext{clientErr: marketdata.ErrAPIKeyNotSet}

		err := appCtx.RequireAPI()
		require.Error(t, err)
		assert.ErrorIs(t, err, marketdata.ErrAPIKeyNotSet)
	})

	t.Run("no error when the client was built", func(t *testing.T) {
		appCtx := &AppContext{}
		assert.NoError(t, appCtx.RequireAPI())
	})
}
