package cognito

import (
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
)

func TestRegionFromPoolID(t *testing.T) {
	region, err := regionFromPoolID("eu-west-1_AbCdEf")
	if err != nil || region != "eu-west-1" {
		t.Fatalf("region = %q, %v", region, err)
	}
	for _, bad := range []string{"", "nounderscore", "_abc"} {
		if _, err := regionFromPoolID(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestMapCognitoError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"throttled", &types.TooManyRequestsException{Message: aws.String("slow down")}, ErrCognitoThrottled},
		{"not authorized", &types.NotAuthorizedException{Message: aws.String("no")}, ErrCognitoNotAuthorized},
		{"expired", &types.ExpiredCodeException{Message: aws.String("old")}, ErrCognitoExpiredCode},
		{"mismatch", &types.CodeMismatchException{Message: aws.String("wrong")}, ErrCognitoCodeMismatch},
		{"exists", &types.UsernameExistsException{Message: aws.String("dup")}, ErrCognitoUserExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapCognitoError(tt.err); !errors.Is(got, tt.want) {
				t.Fatalf("mapCognitoError() = %v, want %v", got, tt.want)
			}
		})
	}

	plain := errors.New("boom")
	if got := mapCognitoError(plain); got != plain {
		t.Fatalf("expected passthrough, got %v", got)
	}
}
