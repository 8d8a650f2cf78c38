package depend

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Greeter interface {
	Greet() string
}

type EnglishGreeter struct{}

func (EnglishGreeter) Greet() string {
	return "Hello!"
}

type PortugueseGreeter struct{}

func (PortugueseGreeter) Greet() string {
	return "Olá!"
}

func TestResolveNamed(t *testing.T) {
	c := NewContainer()

	englishGreeter := EnglishGreeter{}
	Register(c, englishGreeter)
	RegisterNamed[Greeter](c, englishGreeter, "englishGreeter")
	portugueseGreeter := PortugueseGreeter{}
	Register(c, portugueseGreeter)
	RegisterNamed[Greeter](c, portugueseGreeter, "portugueseGreeter")

	tests := map[string]struct {
		resolveFunc   func() (any, error)
		expectedValue any
		expectedErr   error
	}{
		"resolve_portuguese_greeter": {
			resolveFunc: func() (any, error) {
				return Resolve[PortugueseGreeter](c)
			},
			expectedValue: portugueseGreeter,
		},
		"resolve_english_greeter": {
			resolveFunc: func() (any, error) {
				return Resolve[EnglishGreeter](c)
			},
			expectedValue: englishGreeter,
		},
		"resolve_interface_dependency": {
			resolveFunc: func() (any, error) {
				return ResolveNamed[Greeter](c, "englishGreeter")
			},
			expectedValue: englishGreeter,
		},
		"resolve_second_interface_dependency": {
			resolveFunc: func() (any, error) {
				return ResolveNamed[Greeter](c, "portugueseGreeter")
			},
			expectedValue: portugueseGreeter,
		},
		"resolve_non_existent_named_interface": {
			resolveFunc: func() (any, error) {
				return ResolveNamed[Greeter](c, "nonexistent")
			},
			expectedValue: nil,
			expectedErr:   errors.New("depend: the dependency 'nonexistent' of type 'depend.Greeter' was not registered"),
		},
		"resolve_non_existent_type": {
			resolveFunc: func() (any, error) {
				return Resolve[float64](c)
			},
			expectedValue: float64(0),
			expectedErr:   errors.New("depend: the dependency type 'float64' was not registered"),
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			result, err := tc.resolveFunc()
			require.Equal(t, tc.expectedErr, err)
			require.Equal(t, tc.expectedValue, result)
		})
	}
}

func TestContainersAreIsolated(t *testing.T) {
	a, b := NewContainer(), NewContainer()
	Register(a, "from-a")

	v, err := Resolve[string](a)
	require.NoError(t, err)
	assert.Equal(t, "from-a", v)

	_, err = Resolve[string](b)
	require.Error(t, err)
}

func TestRegisterNamedOnce_Greeter(t *testing.T) {
	c := NewContainer()

	err := RegisterNamedOnce[Greeter](c, EnglishGreeter{}, "english")
	require.NoError(t, err)

	err = RegisterNamedOnce[Greeter](c, PortugueseGreeter{}, "english")
	require.EqualError(t, err, `depend: dependency already registered for type depend.Greeter and name "english"`)

	err = RegisterNamedOnce[Greeter](c, PortugueseGreeter{}, "portuguese")
	require.NoError(t, err)

	g, err := ResolveNamed[Greeter](c, "english")
	require.NoError(t, err)
	require.Equal(t, "Hello!", g.Greet())

	g, err = ResolveNamed[Greeter](c, "portuguese")
	require.NoError(t, err)
	require.Equal(t, "Olá!", g.Greet())
}

func TestRegisterOnce_Greeter(t *testing.T) {
	c := NewContainer()

	err := RegisterOnce[Greeter](c, EnglishGreeter{})
	require.NoError(t, err)

	err = RegisterOnce[Greeter](c, PortugueseGreeter{})
	require.EqualError(t, err, "depend: dependency already registered for type depend.Greeter")

	g, err := Resolve[Greeter](c)
	require.NoError(t, err)
	require.Equal(t, "Hello!", g.Greet())
}

func TestResolveStruct(t *testing.T) {
	c := NewContainer()

	type (
		test struct {
			Answer            int     `resolve:""`
			EnglishGreeter    Greeter `resolve:"englishGreeter"`
			PortugueseGreeter Greeter `resolve:"portugueseGreeter"`
			NotTagged         string
		}
		testMissingType struct {
			Greeter Greeter `resolve:""`
		}
		testMissingNamed struct {
			MissingDep string `resolve:"missing"`
		}
	)

	Register(c, int(42))
	RegisterNamed[Greeter](c, EnglishGreeter{}, "englishGreeter")
	RegisterNamed[Greeter](c, PortugueseGreeter{}, "portugueseGreeter")

	t.Run("resolve_all_dependencies", func(t *testing.T) {
		target := &test{}
		require.NoError(t, ResolveStruct(c, target))
		assert.Equal(t, test{
			Answer:            42,
			EnglishGreeter:    EnglishGreeter{},
			PortugueseGreeter: PortugueseGreeter{},
		}, *target)
	})
	t.Run("error_resolving_missing_dependency", func(t *testing.T) {
		err := ResolveStruct(c, &testMissingType{})
		assert.Equal(t, errors.New("depend: the dependency '' of type 'depend.Greeter' was not registered"), err)
	})
	t.Run("error_resolving_missing_named_dependency", func(t *testing.T) {
		err := ResolveStruct(c, &testMissingNamed{})
		assert.Equal(t, errors.New("depend: the dependency type 'string' was not registered"), err)
	})
	t.Run("error_resolving_non_struct", func(t *testing.T) {
		err := ResolveStruct(c, &[]string{"not a struct"})
		assert.Equal(t, errors.New("target must be a struct pointer, got '*[]string'"), err)
	})
}
