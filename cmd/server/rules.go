package main

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/gethead/internal/cfg"
	"github.com/keithlinneman/gethead/internal/gethead"
	"github.com/keithlinneman/gethead/internal/log"
	"github.com/keithlinneman/gethead/internal/rulesrc"
	"github.com/keithlinneman/gethead/internal/xerrors"
)

// ruleCounter is the part of the server metrics rule loading reports to.
type ruleCounter interface {
	SetIgnoreRules(source string, n int)
}

// loadIgnoreRules merges the -ignore-paths list with every configured
// document source. AWS config is only loaded when a remote source is set.
func loadIgnoreRules(ctx context.Context, L log.Logger, conf cfg.App, m ruleCounter) (gethead.Rules, error) {
	rules, err := conf.IgnoreRules()
	if err != nil {
		return nil, err
	}
	m.SetIgnoreRules("flag", len(rules))

	sources, err := ruleSources(ctx, conf)
	if err != nil {
		return nil, err
	}
	for _, src := range sources {
		got, err := rulesrc.Load(ctx, L, src)
		if err != nil {
			return nil, err
		}
		m.SetIgnoreRules(src.Name(), len(got))
		rules = append(rules, got...)
	}
	return rules, nil
}

func ruleSources(ctx context.Context, conf cfg.App) ([]rulesrc.Source, error) {
	var out []rulesrc.Source
	if conf.IgnorePathsFile != "" {
		out = append(out, rulesrc.FileSource{Path: conf.IgnorePathsFile})
	}
	if conf.IgnorePathsSSMParam == "" && conf.IgnorePathsS3URI == "" {
		return out, nil
	}

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, xerrors.Wrap(err, "load AWS config")
	}
	if conf.IgnorePathsSSMParam != "" {
		out = append(out, rulesrc.SSMSource{Client: ssm.NewFromConfig(awsCfg), Param: conf.IgnorePathsSSMParam})
	}
	if conf.IgnorePathsS3URI != "" {
		bucket, key, err := rulesrc.ParseS3URI(conf.IgnorePathsS3URI)
		if err != nil {
			return nil, err
		}
		out = append(out, rulesrc.S3Source{Client: s3.NewFromConfig(awsCfg), Bucket: bucket, Key: key})
	}
	return out, nil
}
