package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueValidatePrecisionRange(t *testing.T) {
	v := NewTimeValue(TimeValue{Value: "+2024-00-00T00:00:00Z", Precision: 15, CalendarModel: "http://www.wikidata.org/entity/Q1985727"})
	err := v.Validate()
	assert.Error(t, err)
	assert.Equal(t, KindBadRequest, err.(*Error).Kind)
}

func TestValueValidateMonolingualRejectsNewline(t *testing.T) {
	v := NewMonolingualValue(MonolingualTextValue{Text: "line one\nline two", Language: "en"})
	err := v.Validate()
	assert.Error(t, err)
}

func TestValueValidateNoValueSomeValueNeedNoPayload(t *testing.T) {
	assert.NoError(t, NewNoValue().Validate())
	assert.NoError(t, NewSomeValue().Validate())
}

func TestValidGUID(t *testing.T) {
	assert.True(t, ValidGUID("Q42$51643521-51F9-4E37-B9A1-2FB0DD25F02D"))
	assert.False(t, ValidGUID("not-a-guid"))
}
