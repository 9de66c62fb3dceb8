package services

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	directorytypes "github.com/vaultline/vaultline/modules/directory/domain/types"
	"github.com/vaultline/vaultline/modules/documents/domain/types"
)

// The required-signer set is an explicit business rule, not an inference:
// deposit certificates and pledge bonds bind warehouse+client, promissory
// notes and endorsements bind bank+client. Operators who additionally
// require the warehouse on endorsements override the expression via
// SIGNER_POLICY_EXPR instead of patching code.
const DefaultSignerPolicyExpr = `signer == 'CLIENT'` +
	` || (signer == 'WAREHOUSE' && doc in ['DEPOSIT_CERT', 'PLEDGE_BOND'])` +
	` || (signer == 'BANK' && doc in ['PROMISSORY_NOTE', 'ENDORSEMENT'])`

var signerCandidates = []directorytypes.OrgType{
	directorytypes.OrgTypeWarehouse,
	directorytypes.OrgTypeClient,
	directorytypes.OrgTypeBank,
}

var newSignerPolicyCELEnv = func() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("doc", cel.StringType),
		cel.Variable("signer", cel.StringType),
	)
}

var signerPolicyProgramCache sync.Map

type SignerPolicy struct {
	expr string
}

func NewSignerPolicy(expr string) SignerPolicy {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		expr = DefaultSignerPolicyExpr
	}
	return SignerPolicy{expr: expr}
}

// RequiredSigners returns the signer set for a document type, in the fixed
// candidate order WAREHOUSE, CLIENT, BANK.
func (p SignerPolicy) RequiredSigners(docType types.DocumentType) ([]directorytypes.OrgType, error) {
	if !docType.Valid() {
		return nil, errors.New("signer policy: invalid document type")
	}

	program, err := loadOrCompileSignerPolicyProgram(p.expr)
	if err != nil {
		return nil, err
	}

	var required []directorytypes.OrgType
	for _, signer := range signerCandidates {
		out, _, err := program.Eval(map[string]any{
			"doc":    string(docType),
			"signer": string(signer),
		})
		if err != nil {
			return nil, err
		}
		if out.Value().(bool) {
			required = append(required, signer)
		}
	}
	if len(required) == 0 {
		return nil, errors.New("signer policy: no signer required for " + string(docType))
	}
	return required, nil
}

func loadOrCompileSignerPolicyProgram(expr string) (cel.Program, error) {
	if cached, ok := signerPolicyProgramCache.Load(expr); ok {
		return cached.(cel.Program), nil
	}
	env, err := newSignerPolicyCELEnv()
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if ast.OutputType() != cel.BoolType {
		return nil, errors.New("signer policy: expression must evaluate to bool")
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, err
	}
	signerPolicyProgramCache.Store(expr, program)
	return program, nil
}
