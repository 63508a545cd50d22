package dynamodb

import (
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// conditionFailed extracts the ConditionalCheckFailedException from err, if any
func conditionFailed(err error) (*types.ConditionalCheckFailedException, bool) {
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return condErr, true
	}
	return nil, false
}
