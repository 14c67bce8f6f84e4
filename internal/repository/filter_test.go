package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildFilter(t *testing.T) {
	tests := []struct {
		name     string
		filter   Filter
		wantSQL  string
		wantArgs []interface{}
	}{
		{
			name:    "no constraints",
			filter:  Filter{},
			wantSQL: "",
		},
		{
			name:     "mine",
			filter:   Filter{ClientID: 7},
			wantSQL:  "WHERE client_id = $1",
			wantArgs: []interface{}{int64(7)},
		},
		{
			name:     "chief scope",
			filter:   Filter{ChiefID: 3},
			wantSQL:  "WHERE is_paid_by_chief AND paid_by_chief_id = $1",
			wantArgs: []interface{}{int64(3)},
		},
		{
			name:    "today only",
			filter:  Filter{Today: true},
			wantSQL: "WHERE created_at::date = CURRENT_DATE",
		},
		{
			name:     "combined",
			filter:   Filter{ClientID: 7, ChiefID: 3, Today: true},
			wantSQL:  "WHERE client_id = $1 AND is_paid_by_chief AND paid_by_chief_id = $2 AND created_at::date = CURRENT_DATE",
			wantArgs: []interface{}{int64(7), int64(3)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotSQL, gotArgs := buildFilter(tt.filter, "created_at")
			assert.Equal(t, tt.wantSQL, gotSQL)
			assert.Equal(t, tt.wantArgs, gotArgs)
		})
	}
}

func TestBuildFilterDateColumn(t *testing.T) {
	gotSQL, _ := buildFilter(Filter{Today: true}, "completed_at")
	assert.Equal(t, "WHERE completed_at::date = CURRENT_DATE", gotSQL)
}

func TestLimitOf(t *testing.T) {
	assert.Equal(t, 100, limitOf(Filter{}))
	assert.Equal(t, 100, limitOf(Filter{Limit: -5}))
	assert.Equal(t, 25, limitOf(Filter{Limit: 25}))
}
