package dynamodb

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// encodeNextToken turns a LastEvaluatedKey into an opaque page token
func encodeNextToken(lastEvaluatedKey map[string]types.AttributeValue) (string, error) {
	if lastEvaluatedKey == nil {
		return "", nil
	}

	// Convert to simple map with just the raw values
	simpleMap := make(map[string]string)
	for key, value := range lastEvaluatedKey {
		switch v := value.(type) {
		case *types.AttributeValueMemberS:
			simpleMap[key] = "S:" + v.Value
		case *types.AttributeValueMemberN:
			simpleMap[key] = "N:" + v.Value
		case *types.AttributeValueMemberB:
			simpleMap[key] = "B:" + base64.URLEncoding.EncodeToString(v.Value)
		default:
			return "", fmt.Errorf("unsupported attribute type: %T", value)
		}
	}

	jsonData, err := json.Marshal(simpleMap)
	if err != nil {
		return "", fmt.Errorf("failed to json marshal: %w", err)
	}

	return base64.URLEncoding.EncodeToString(jsonData), nil
}

func decodeNextToken(nextToken string) (map[string]types.AttributeValue, error) {
	if nextToken == "" {
		return nil, nil
	}

	jsonData, err := base64.URLEncoding.DecodeString(nextToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decode next token: %w", err)
	}

	var simpleMap map[string]string
	if err := json.Unmarshal(jsonData, &simpleMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal next token: %w", err)
	}

	// Convert back to AttributeValue map
	result := make(map[string]types.AttributeValue)
	for key, value := range simpleMap {
		if len(value) < 2 || value[1] != ':' {
			return nil, fmt.Errorf("invalid token format for key %s", key)
		}

		prefix := value[:1]
		data := value[2:]

		switch prefix {
		case "S":
			result[key] = &types.AttributeValueMemberS{Value: data}
		case "N":
			result[key] = &types.AttributeValueMemberN{Value: data}
		case "B":
			decoded, err := base64.URLEncoding.DecodeString(data)
			if err != nil {
				return nil, fmt.Errorf("failed to decode binary data for key %s: %w", key, err)
			}
			result[key] = &types.AttributeValueMemberB{Value: decoded}
		default:
			return nil, fmt.Errorf("unsupported attribute type prefix: %s", prefix)
		}
	}

	return result, nil
}
